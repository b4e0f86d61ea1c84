/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package linear

import (
    "bytes"
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "net/http"
    "strings"
    "time"

    "github.com/aytch4k/linear-app-productivity-metrics/internal/config"
    "github.com/aytch4k/linear-app-productivity-metrics/internal/domain"
    "github.com/rs/zerolog"
)

type Client struct {
    apiURL   string
    key      string
    pageSize int
    http     *http.Client
    log      zerolog.Logger
}

func NewClient(cfg config.Config, log zerolog.Logger) *Client {
    return &Client{
        apiURL:   cfg.LinearAPIURL,
        key:      cfg.LinearAPIKey,
        pageSize: cfg.LinearPageSize,
        http:     &http.Client{ Timeout: cfg.HTTPTimeout },
        log:      log,
    }
}

// Team is the slice of a Linear team the sync needs: identity plus the
// members whose capacity rows get seeded per cycle.
type Team struct {
    ID        string
    Key       string
    Name      string
    MemberIDs []string
}

// IssueWithHistory pairs an issue snapshot with its ordered workflow
// state transitions.
type IssueWithHistory struct {
    Issue   domain.Issue
    History []domain.StateChange
}

type gqlError struct {
    Message string `json:"message"`
}

type pageInfo struct {
    HasNextPage bool   `json:"hasNextPage"`
    EndCursor   string `json:"endCursor"`
}

// doQuery posts one GraphQL request and decodes data into out.
// 429 and 5xx responses are retried with exponential backoff.
func (c *Client) doQuery(ctx context.Context, query string, vars map[string]any, out any) error {
    if c.apiURL == "" { return errors.New("linear: empty api url") }
    if c.key == "" { return errors.New("linear: empty api key") }
    payload, err := json.Marshal(map[string]any{"query": query, "variables": vars})
    if err != nil { return err }
    var lastErr error
    for attempt := 0; attempt < 3; attempt++ {
        req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(payload))
        if err != nil { return err }
        req.Header.Set("Content-Type", "application/json")
        req.Header.Set("Authorization", c.key)
        resp, err := c.http.Do(req)
        if err != nil { lastErr = err } else {
            b, rerr := io.ReadAll(resp.Body)
            resp.Body.Close()
            if rerr != nil { return rerr }
            if resp.StatusCode >= 300 {
                // retry on 429/5xx
                if resp.StatusCode == 429 || resp.StatusCode >= 500 {
                    lastErr = fmt.Errorf("linear api status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(b)))
                } else {
                    return fmt.Errorf("linear api status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(b)))
                }
            } else {
                var env struct {
                    Data   json.RawMessage `json:"data"`
                    Errors []gqlError      `json:"errors"`
                }
                if err := json.Unmarshal(b, &env); err != nil { return err }
                if len(env.Errors) > 0 {
                    return fmt.Errorf("linear graphql: %s", env.Errors[0].Message)
                }
                return json.Unmarshal(env.Data, out)
            }
        }
        select {
        case <-ctx.Done():
            return ctx.Err()
        case <-time.After(time.Duration(300*(1<<attempt)) * time.Millisecond):
        }
    }
    return lastErr
}

const viewerQuery = `query { viewer { id name email } }`

// Viewer fetches the authenticated user. Used as the connectivity check
// before a sync run starts writing.
func (c *Client) Viewer(ctx context.Context) (domain.User, error) {
    var out struct {
        Viewer struct {
            ID    string `json:"id"`
            Name  string `json:"name"`
            Email string `json:"email"`
        } `json:"viewer"`
    }
    if err := c.doQuery(ctx, viewerQuery, nil, &out); err != nil { return domain.User{}, err }
    return domain.User{ID: out.Viewer.ID, Name: out.Viewer.Name, Email: out.Viewer.Email}, nil
}

const usersQuery = `query($first: Int!, $after: String) {
  users(first: $first, after: $after) {
    nodes { id name email }
    pageInfo { hasNextPage endCursor }
  }
}`

func (c *Client) Users(ctx context.Context) ([]domain.User, error) {
    var users []domain.User
    after := ""
    for {
        var out struct {
            Users struct {
                Nodes []struct {
                    ID    string `json:"id"`
                    Name  string `json:"name"`
                    Email string `json:"email"`
                } `json:"nodes"`
                PageInfo pageInfo `json:"pageInfo"`
            } `json:"users"`
        }
        if err := c.doQuery(ctx, usersQuery, c.pageVars(after), &out); err != nil { return nil, err }
        for _, n := range out.Users.Nodes {
            users = append(users, domain.User{ID: n.ID, Name: n.Name, Email: n.Email})
        }
        if !out.Users.PageInfo.HasNextPage { break }
        after = out.Users.PageInfo.EndCursor
    }
    return users, nil
}

const teamsQuery = `query($first: Int!, $after: String) {
  teams(first: $first, after: $after) {
    nodes {
      id key name
      memberships(first: 100) { nodes { user { id } } }
    }
    pageInfo { hasNextPage endCursor }
  }
}`

func (c *Client) Teams(ctx context.Context) ([]Team, error) {
    var teams []Team
    after := ""
    for {
        var out struct {
            Teams struct {
                Nodes []struct {
                    ID          string `json:"id"`
                    Key         string `json:"key"`
                    Name        string `json:"name"`
                    Memberships struct {
                        Nodes []struct {
                            User struct {
                                ID string `json:"id"`
                            } `json:"user"`
                        } `json:"nodes"`
                    } `json:"memberships"`
                } `json:"nodes"`
                PageInfo pageInfo `json:"pageInfo"`
            } `json:"teams"`
        }
        if err := c.doQuery(ctx, teamsQuery, c.pageVars(after), &out); err != nil { return nil, err }
        for _, n := range out.Teams.Nodes {
            t := Team{ID: n.ID, Key: n.Key, Name: n.Name}
            for _, m := range n.Memberships.Nodes {
                t.MemberIDs = append(t.MemberIDs, m.User.ID)
            }
            teams = append(teams, t)
        }
        if !out.Teams.PageInfo.HasNextPage { break }
        after = out.Teams.PageInfo.EndCursor
    }
    return teams, nil
}

const cyclesQuery = `query($team: String!, $first: Int!, $after: String) {
  team(id: $team) {
    cycles(first: $first, after: $after) {
      nodes { id number name startsAt endsAt }
      pageInfo { hasNextPage endCursor }
    }
  }
}`

func (c *Client) TeamCycles(ctx context.Context, teamID string) ([]domain.Cycle, error) {
    var cycles []domain.Cycle
    after := ""
    for {
        var out struct {
            Team struct {
                Cycles struct {
                    Nodes []struct {
                        ID       string    `json:"id"`
                        Number   int       `json:"number"`
                        Name     string    `json:"name"`
                        StartsAt time.Time `json:"startsAt"`
                        EndsAt   time.Time `json:"endsAt"`
                    } `json:"nodes"`
                    PageInfo pageInfo `json:"pageInfo"`
                } `json:"cycles"`
            } `json:"team"`
        }
        vars := c.pageVars(after)
        vars["team"] = teamID
        if err := c.doQuery(ctx, cyclesQuery, vars, &out); err != nil { return nil, err }
        for _, n := range out.Team.Cycles.Nodes {
            name := n.Name
            if name == "" { name = fmt.Sprintf("Cycle %d", n.Number) }
            cycles = append(cycles, domain.Cycle{
                ID:       n.ID,
                TeamID:   teamID,
                Number:   n.Number,
                Name:     name,
                StartsAt: n.StartsAt,
                EndsAt:   n.EndsAt,
            })
        }
        if !out.Team.Cycles.PageInfo.HasNextPage { break }
        after = out.Team.Cycles.PageInfo.EndCursor
    }
    return cycles, nil
}

const issuesQuery = `query($team: String!, $first: Int!, $after: String) {
  team(id: $team) {
    issues(first: $first, after: $after) {
      nodes {
        id title priority estimate createdAt completedAt
        state { name }
        cycle { id }
        assignee { id }
        history(first: 250) {
          nodes {
            createdAt
            fromState { name }
            toState { name }
          }
        }
      }
      pageInfo { hasNextPage endCursor }
    }
  }
}`

// TeamIssues fetches a team's issues with their state-change history.
// History entries that are not workflow transitions (Linear logs every
// mutation) come back with null states and are dropped here.
func (c *Client) TeamIssues(ctx context.Context, teamID string) ([]IssueWithHistory, error) {
    var issues []IssueWithHistory
    after := ""
    for {
        var out struct {
            Team struct {
                Issues struct {
                    Nodes []struct {
                        ID          string     `json:"id"`
                        Title       string     `json:"title"`
                        Priority    float64    `json:"priority"`
                        Estimate    *float64   `json:"estimate"`
                        CreatedAt   time.Time  `json:"createdAt"`
                        CompletedAt *time.Time `json:"completedAt"`
                        State       struct {
                            Name string `json:"name"`
                        } `json:"state"`
                        Cycle *struct {
                            ID string `json:"id"`
                        } `json:"cycle"`
                        Assignee *struct {
                            ID string `json:"id"`
                        } `json:"assignee"`
                        History struct {
                            Nodes []struct {
                                CreatedAt time.Time `json:"createdAt"`
                                FromState *struct {
                                    Name string `json:"name"`
                                } `json:"fromState"`
                                ToState *struct {
                                    Name string `json:"name"`
                                } `json:"toState"`
                            } `json:"nodes"`
                        } `json:"history"`
                    } `json:"nodes"`
                    PageInfo pageInfo `json:"pageInfo"`
                } `json:"issues"`
            } `json:"team"`
        }
        vars := c.pageVars(after)
        vars["team"] = teamID
        if err := c.doQuery(ctx, issuesQuery, vars, &out); err != nil { return nil, err }
        for _, n := range out.Team.Issues.Nodes {
            iss := domain.Issue{
                ID:          n.ID,
                Title:       n.Title,
                State:       n.State.Name,
                Priority:    int(n.Priority),
                Estimate:    n.Estimate,
                CreatedAt:   n.CreatedAt,
                CompletedAt: n.CompletedAt,
            }
            if n.Cycle != nil { iss.CycleID = &n.Cycle.ID }
            if n.Assignee != nil { iss.AssigneeID = &n.Assignee.ID }
            item := IssueWithHistory{Issue: iss}
            for _, h := range n.History.Nodes {
                if h.ToState == nil { continue }
                from := ""
                if h.FromState != nil { from = h.FromState.Name }
                item.History = append(item.History, domain.StateChange{
                    IssueID:   n.ID,
                    FromState: from,
                    ToState:   h.ToState.Name,
                    At:        h.CreatedAt,
                })
            }
            issues = append(issues, item)
        }
        if !out.Team.Issues.PageInfo.HasNextPage { break }
        after = out.Team.Issues.PageInfo.EndCursor
    }
    return issues, nil
}

func (c *Client) pageVars(after string) map[string]any {
    vars := map[string]any{"first": c.pageSize}
    if after != "" { vars["after"] = after }
    return vars
}
