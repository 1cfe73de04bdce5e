// Package mcpserver registers MCP tools that expose the reconciled job
// view and the conversation store. It adapts both to the MCP SDK's tool
// handler interface and renders times as RFC 3339 strings.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/alexjbarnes/relaydeck/internal/conversation"
	"github.com/alexjbarnes/relaydeck/internal/notice"
	"github.com/alexjbarnes/relaydeck/internal/progress"
	"github.com/alexjbarnes/relaydeck/upstream"
)

// Deps holds the components the tools operate on. Conversations may be
// nil when messaging is not configured; the conversation tools are then
// not registered.
type Deps struct {
	Jobs          *progress.Reconciler
	Poller        *progress.Poller
	Conversations *conversation.Store
	Notices       *notice.Board
	Location      *time.Location
}

// RegisterTools adds the job and conversation tools to the given MCP server.
func RegisterTools(server *mcp.Server, d Deps) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "jobs_list",
		Description: "List every tracked automation with its live status, progress percentage and step counters, plus a count per status. Optionally filter to one status.",
	}, jobsListHandler(d))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "job_control",
		Description: "Pause, resume or delete an automation by id. The job list is refreshed after a successful action.",
	}, jobControlHandler(d))

	if d.Notices != nil {
		mcp.AddTool(server, &mcp.Tool{
			Name:        "notice_dismiss",
			Description: "Dismiss the failure or status notice currently on display and return it. Returns dismissed=false when no notice is showing.",
		}, noticeDismissHandler(d))
	}

	if d.Conversations == nil {
		return
	}

	mcp.AddTool(server, &mcp.Tool{
		Name:        "conversations_list",
		Description: "Refresh and list messaging conversations in the order the API returns them. An optional query filters by contact name or last message, case-insensitive.",
	}, conversationsListHandler(d))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "conversation_open",
		Description: "Make a conversation active and load its messages. Only one conversation is active at a time.",
	}, conversationOpenHandler(d))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "messages_timeline",
		Description: "Return the active conversation's messages in order, with day separators and a self or counterparty origin on each message.",
	}, timelineHandler(d))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "message_send",
		Description: "Send a text message to the active conversation. Fails without an active conversation or with empty text.",
	}, sendHandler(d))
}

// --- Input types ---
// The MCP SDK infers JSON schema from these struct types via jsonschema tags.

// JobsListInput holds parameters for jobs_list.
type JobsListInput struct {
	Status string `json:"status,omitempty" jsonschema:"only return jobs with this status"`
}

// JobControlInput holds parameters for job_control.
type JobControlInput struct {
	ID     string `json:"id" jsonschema:"automation id"`
	Action string `json:"action" jsonschema:"one of pause, resume, delete"`
}

// ConversationsListInput holds parameters for conversations_list.
type ConversationsListInput struct {
	Query string `json:"query,omitempty" jsonschema:"case-insensitive filter on name and last message"`
}

// ConversationOpenInput holds parameters for conversation_open.
type ConversationOpenInput struct {
	ID string `json:"id" jsonschema:"conversation id from conversations_list"`
}

// NoticeDismissInput has no parameters.
type NoticeDismissInput struct{}

// TimelineInput has no parameters.
type TimelineInput struct{}

// SendInput holds parameters for message_send.
type SendInput struct {
	Text           string `json:"text" jsonschema:"message text"`
	ConversationID string `json:"conversation_id,omitempty" jsonschema:"must match the active conversation, defaults to it"`
}

// --- Output types ---

// JobView is an automation as presented to tool callers.
type JobView struct {
	ID          string   `json:"id"`
	ExecutionID string   `json:"execution_id,omitempty"`
	Name        string   `json:"name,omitempty"`
	Status      string   `json:"status"`
	Progress    *float64 `json:"progress,omitempty"`
	Message     string   `json:"message,omitempty"`
	Current     *int     `json:"current,omitempty"`
	Total       *int     `json:"total,omitempty"`
	Interval    string   `json:"interval,omitempty"`
	LastRunAt   string   `json:"last_run_at,omitempty"`
	NextRunAt   string   `json:"next_run_at,omitempty"`
}

// JobsListResult is returned by jobs_list.
type JobsListResult struct {
	Total        int            `json:"total"`
	ByStatus     map[string]int `json:"by_status"`
	Jobs         []JobView      `json:"jobs"`
	Loading      bool           `json:"loading"`
	AuthRequired bool           `json:"auth_required"`
	LastRefresh  string         `json:"last_refresh,omitempty"`
}

// JobControlResult is returned by job_control.
type JobControlResult struct {
	ID     string   `json:"id"`
	Action string   `json:"action"`
	Job    *JobView `json:"job,omitempty"`
}

// NoticeDismissResult is returned by notice_dismiss.
type NoticeDismissResult struct {
	Dismissed bool   `json:"dismissed"`
	Text      string `json:"text,omitempty"`
	Level     string `json:"level,omitempty"`
}

// ConversationView is a conversation as presented to tool callers.
type ConversationView struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	LastMessage  string `json:"last_message,omitempty"`
	LastActivity string `json:"last_activity,omitempty"`
	Unread       int    `json:"unread"`
	Important    bool   `json:"important,omitempty"`
	Active       bool   `json:"active,omitempty"`
}

// ConversationsListResult is returned by conversations_list.
type ConversationsListResult struct {
	Total         int                `json:"total"`
	Conversations []ConversationView `json:"conversations"`
}

// MessageView is a message as presented to tool callers.
type MessageView struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Sender    string `json:"sender,omitempty"`
	Origin    string `json:"origin"`
	Timestamp string `json:"timestamp,omitempty"`
	Time      string `json:"time,omitempty"`
	Pending   bool   `json:"pending,omitempty"`
}

// TimelineEntry is either a day separator or a message.
type TimelineEntry struct {
	Day     string       `json:"day,omitempty"`
	Message *MessageView `json:"message,omitempty"`
}

// TimelineResult is returned by messages_timeline and conversation_open.
type TimelineResult struct {
	ConversationID string          `json:"conversation_id"`
	Name           string          `json:"name"`
	Messages       int             `json:"messages"`
	Entries        []TimelineEntry `json:"entries"`
}

// SendResult is returned by message_send.
type SendResult struct {
	ConversationID string      `json:"conversation_id"`
	Message        MessageView `json:"message"`
}

// --- Handlers ---

func jobsListHandler(d Deps) mcp.ToolHandlerFor[JobsListInput, *JobsListResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input JobsListInput) (*mcp.CallToolResult, *JobsListResult, error) {
		jobs := d.Jobs.Snapshot()
		summary := progress.Summarize(jobs)

		result := &JobsListResult{
			Total:    summary.Total,
			ByStatus: make(map[string]int, len(summary.ByStatus)),
			Jobs:     make([]JobView, 0, len(jobs)),
		}
		for status, n := range summary.ByStatus {
			result.ByStatus[string(status)] = n
		}
		for _, job := range jobs {
			if input.Status != "" && string(job.Status) != input.Status {
				continue
			}
			result.Jobs = append(result.Jobs, jobView(job))
		}
		if d.Poller != nil {
			result.Loading = d.Poller.Loading()
			result.AuthRequired = d.Poller.AuthRequired()
			result.LastRefresh = formatTime(d.Poller.LastRefresh())
		}
		return textResult(result), result, nil
	}
}

func jobControlHandler(d Deps) mcp.ToolHandlerFor[JobControlInput, *JobControlResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input JobControlInput) (*mcp.CallToolResult, *JobControlResult, error) {
		if d.Poller == nil {
			return nil, nil, fmt.Errorf("job control is unavailable")
		}

		var err error
		switch input.Action {
		case "pause":
			err = d.Poller.Pause(ctx, input.ID)
		case "resume":
			err = d.Poller.Resume(ctx, input.ID)
		case "delete":
			err = d.Poller.Delete(ctx, input.ID)
		default:
			return nil, nil, fmt.Errorf("unknown action %q, want pause, resume or delete", input.Action)
		}
		if err != nil {
			return nil, nil, err
		}

		result := &JobControlResult{ID: input.ID, Action: input.Action}
		if job, ok := d.Jobs.Job(input.ID); ok {
			v := jobView(job)
			result.Job = &v
		}
		return textResult(result), result, nil
	}
}

func noticeDismissHandler(d Deps) mcp.ToolHandlerFor[NoticeDismissInput, *NoticeDismissResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, _ NoticeDismissInput) (*mcp.CallToolResult, *NoticeDismissResult, error) {
		result := &NoticeDismissResult{}
		if n := d.Notices.Dismiss(); n != nil {
			result.Dismissed = true
			result.Text = n.Text
			result.Level = n.Level.String()
		}
		return textResult(result), result, nil
	}
}

func conversationsListHandler(d Deps) mcp.ToolHandlerFor[ConversationsListInput, *ConversationsListResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ConversationsListInput) (*mcp.CallToolResult, *ConversationsListResult, error) {
		if _, err := d.Conversations.ListConversations(ctx); err != nil {
			return nil, nil, err
		}

		active, _ := d.Conversations.Active()
		convs := d.Conversations.Filter(input.Query)
		result := &ConversationsListResult{
			Total:         len(convs),
			Conversations: make([]ConversationView, 0, len(convs)),
		}
		for _, c := range convs {
			result.Conversations = append(result.Conversations, ConversationView{
				ID:           c.ID,
				Name:         c.Name,
				LastMessage:  c.LastMessage,
				LastActivity: formatTime(c.LastActivity),
				Unread:       c.Unread,
				Important:    c.Important,
				Active:       c.ID == active.ID,
			})
		}
		return textResult(result), result, nil
	}
}

func conversationOpenHandler(d Deps) mcp.ToolHandlerFor[ConversationOpenInput, *TimelineResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ConversationOpenInput) (*mcp.CallToolResult, *TimelineResult, error) {
		conv, ok := d.Conversations.Conversation(input.ID)
		if !ok {
			return nil, nil, fmt.Errorf("conversation %q not found, call conversations_list first", input.ID)
		}
		if err := d.Conversations.OpenConversation(ctx, conv); err != nil {
			return nil, nil, err
		}
		result := timeline(d)
		return textResult(result), result, nil
	}
}

func timelineHandler(d Deps) mcp.ToolHandlerFor[TimelineInput, *TimelineResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, _ TimelineInput) (*mcp.CallToolResult, *TimelineResult, error) {
		if _, ok := d.Conversations.Active(); !ok {
			return nil, nil, fmt.Errorf("no conversation is open, call conversation_open first")
		}
		result := timeline(d)
		return textResult(result), result, nil
	}
}

func sendHandler(d Deps) mcp.ToolHandlerFor[SendInput, *SendResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input SendInput) (*mcp.CallToolResult, *SendResult, error) {
		msg, err := d.Conversations.SendMessage(ctx, input.ConversationID, input.Text)
		if err != nil {
			return nil, nil, err
		}
		active, _ := d.Conversations.Active()
		result := &SendResult{
			ConversationID: active.ID,
			Message:        messageView(msg, ""),
		}
		return textResult(result), result, nil
	}
}

// --- Views ---

func timeline(d Deps) *TimelineResult {
	active, _ := d.Conversations.Active()
	msgs := d.Conversations.Messages()
	items := conversation.Timeline(msgs, d.Location)

	result := &TimelineResult{
		ConversationID: active.ID,
		Name:           active.Name,
		Messages:       len(msgs),
		Entries:        make([]TimelineEntry, 0, len(items)),
	}
	for _, it := range items {
		if it.Separator {
			result.Entries = append(result.Entries, TimelineEntry{Day: it.Day})
			continue
		}
		m := messageView(*it.Message, it.Time)
		result.Entries = append(result.Entries, TimelineEntry{Message: &m})
	}
	return result
}

func jobView(job upstream.Automation) JobView {
	return JobView{
		ID:          job.ID,
		ExecutionID: job.ExecutionID,
		Name:        job.Name,
		Status:      string(job.Status),
		Progress:    job.Progress,
		Message:     job.Message,
		Current:     job.Current,
		Total:       job.Total,
		Interval:    job.Interval,
		LastRunAt:   formatTime(job.LastRunAt.Time),
		NextRunAt:   formatTime(job.NextRunAt.Time),
	}
}

func messageView(m conversation.Message, clock string) MessageView {
	return MessageView{
		ID:        m.ID,
		Text:      m.Text,
		Sender:    m.Sender,
		Origin:    string(m.Origin),
		Timestamp: formatTime(m.Timestamp),
		Time:      clock,
		Pending:   m.Pending,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// textResult builds a CallToolResult with JSON text content from any value.
// This provides the unstructured content alongside the structured output
// that the SDK populates automatically.
func textResult(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("error marshaling result: %v", err)}},
			IsError: true,
		}
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}
}
