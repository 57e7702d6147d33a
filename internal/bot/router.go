package bot

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"regexp"
	"strings"

	"github.com/zulandar/matinee/internal/identity"
	"github.com/zulandar/matinee/internal/models"
)

// Command trigger vocabularies. Matching is case-insensitive on the first
// whitespace-delimited token.
var (
	clearTriggers = map[string]bool{"!clear": true, "!reset": true, "!clearcontext": true}
	helpTriggers  = map[string]bool{"!help": true, "!commands": true}
	chatPrefixes  = map[string]bool{"!assistant": true, "!bot": true, "!support": true}
)

// numericReplyRe matches a bare selection answer.
var numericReplyRe = regexp.MustCompile(`^[1-5]$`)

// discordMentionRe matches Discord mention formats: <@ID> or <@!ID>.
var discordMentionRe = regexp.MustCompile(`<@!?\d+>`)

// genericErrorReply is sent when a handler fails unexpectedly.
const genericErrorReply = "Something went wrong on my end — please try that again in a moment."

// linkPrompt is sent to users who have not linked their account.
const linkPrompt = "You haven't linked your Discord account to Matinee yet. " +
	"Open the Matinee dashboard, go to Settings → Connections, and link Discord to use the bot."

// IdentityVerifier resolves a Discord user to an internal account.
type IdentityVerifier interface {
	Verify(ctx context.Context, discordUserID string) (identity.VerifyResult, error)
}

// inbound carries one message plus everything derived while classifying it.
type inbound struct {
	msg   InboundMessage
	text  string // whitespace-normalized message text
	token string // lower-cased first token, "" for empty messages
	user  *models.User
}

// rule is one classification outcome: a predicate and its handler, plus the
// audit kind and a command name for the audit row. Rules are evaluated
// top-to-bottom, so the priority order is visible as data.
type rule struct {
	kind    models.CommandKind
	match   func(r *Router, in *inbound) bool
	command func(r *Router, in *inbound) string
	// handle returns done=false to fall through to the next rule (used by
	// the numeric-selection rule when no pending selection matches).
	handle func(r *Router, ctx context.Context, in *inbound) (done bool, err error)
}

// rules is the fixed dispatch order: clear-context, help, media-mark,
// numeric selection, chat. Each message takes exactly one outcome path. The
// not-linked check runs before any rule; anything unmatched is log-only.
var rules = []rule{
	{
		kind:    models.KindClearContext,
		match:   func(_ *Router, in *inbound) bool { return clearTriggers[in.token] },
		command: func(_ *Router, in *inbound) string { return in.token },
		handle:  (*Router).handleClear,
	},
	{
		kind:    models.KindHelp,
		match:   func(_ *Router, in *inbound) bool { return helpTriggers[in.token] },
		command: func(_ *Router, in *inbound) string { return in.text },
		handle:  (*Router).handleHelp,
	},
	{
		kind: models.KindMediaMark,
		match: func(_ *Router, in *inbound) bool {
			_, ok := DispositionFor(in.token)
			return ok
		},
		command: func(_ *Router, in *inbound) string { return in.text },
		handle:  (*Router).handleMark,
	},
	{
		kind: models.KindSelection,
		match: func(r *Router, in *inbound) bool {
			return numericReplyRe.MatchString(in.text) &&
				r.marks.HasSelection(in.msg.ChannelID, in.msg.UserID, in.msg.ReplyToID)
		},
		command: func(_ *Router, in *inbound) string { return in.text },
		handle:  (*Router).handleSelection,
	},
	{
		kind:    models.KindChat,
		match:   func(r *Router, in *inbound) bool { return r.isChatTrigger(in) },
		command: func(r *Router, in *inbound) string { return r.chatCommandName(in) },
		handle:  (*Router).handleChat,
	},
}

// Router classifies inbound messages and routes each to exactly one
// handler. A handler failure is logged, audited as failed, and answered
// with a generic apology — it never takes the connection down.
type Router struct {
	identity       IdentityVerifier
	marks          *MarkService
	chat           *ChatService
	auditor        *Auditor
	adapter        Adapter
	supportChannel string
	allowedThreads map[string]bool
	out            io.Writer
}

// RouterOpts holds parameters for creating a Router.
type RouterOpts struct {
	Identity       IdentityVerifier
	Marks          *MarkService
	Chat           *ChatService
	Auditor        *Auditor
	Adapter        Adapter
	SupportChannel string
	AllowedThreads []string
	Out            io.Writer // defaults to os.Stdout
}

// NewRouter creates a Router.
func NewRouter(opts RouterOpts) (*Router, error) {
	if opts.Identity == nil {
		return nil, fmt.Errorf("bot: router: identity verifier is required")
	}
	if opts.Marks == nil {
		return nil, fmt.Errorf("bot: router: mark service is required")
	}
	if opts.Chat == nil {
		return nil, fmt.Errorf("bot: router: chat service is required")
	}
	if opts.Auditor == nil {
		return nil, fmt.Errorf("bot: router: auditor is required")
	}
	if opts.Adapter == nil {
		return nil, fmt.Errorf("bot: router: adapter is required")
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	threads := make(map[string]bool, len(opts.AllowedThreads))
	for _, id := range opts.AllowedThreads {
		threads[id] = true
	}
	return &Router{
		identity:       opts.Identity,
		marks:          opts.Marks,
		chat:           opts.Chat,
		auditor:        opts.Auditor,
		adapter:        opts.Adapter,
		supportChannel: opts.SupportChannel,
		allowedThreads: threads,
		out:            out,
	}, nil
}

// Handle classifies and routes a single inbound message.
func (r *Router) Handle(ctx context.Context, msg InboundMessage) {
	defer func() {
		if p := recover(); p != nil {
			log.Printf("bot: router: panic handling message from %s in %s: %v",
				msg.UserID, msg.ChannelID, p)
			r.sendGenericError(ctx, msg)
		}
	}()

	if !r.monitored(msg) {
		return
	}

	in := &inbound{
		msg:  msg,
		text: strings.Join(strings.Fields(msg.Text), " "),
	}
	if fields := strings.Fields(in.text); len(fields) > 0 {
		in.token = strings.ToLower(fields[0])
	}

	fmt.Fprintf(r.out, "bot: router: recv [ch=%s type=%s user=%s] %q\n",
		msg.ChannelID, msg.ChannelType, msg.UserName, truncate(in.text, 80))

	res, err := r.identity.Verify(ctx, msg.UserID)
	if err != nil {
		log.Printf("bot: router: verify %s: %v", msg.UserID, err)
		r.sendGenericError(ctx, msg)
		return
	}
	if !res.Linked {
		r.handleUnlinked(ctx, in)
		return
	}
	in.user = res.User

	for i := range rules {
		rl := &rules[i]
		if !rl.match(r, in) {
			continue
		}
		if r.dispatch(ctx, rl, in) {
			return
		}
		// Fell through (numeric reply with no pending selection): keep
		// evaluating lower-priority rules without replying.
	}

	fmt.Fprintf(r.out, "bot: router: → ignore [ch=%s user=%s]\n", msg.ChannelID, msg.UserName)
}

// dispatch runs one matched rule with audit bracketing. Returns false when
// the handler declined the message (selection fallthrough); in that case no
// audit row is finalized because nothing was handled.
func (r *Router) dispatch(ctx context.Context, rl *rule, in *inbound) bool {
	fmt.Fprintf(r.out, "bot: router: → %s [ch=%s user=%s]\n", rl.kind, in.msg.ChannelID, in.msg.UserName)

	rec := r.auditor.Begin(r.auditRecord(in, rl.kind, rl.command(r, in)))

	done, err := rl.handle(r, ctx, in)
	if !done {
		// The pending record stays as a trace of the attempted dispatch.
		r.auditor.Complete(rec, models.AuditSuccess, "no pending selection; fell through")
		return false
	}
	if err != nil {
		log.Printf("bot: router: %s [ch=%s user=%s]: %v", rl.kind, in.msg.ChannelID, in.msg.UserID, err)
		r.sendGenericError(ctx, in.msg)
		r.auditor.Complete(rec, models.AuditFailed, err.Error())
		return true
	}
	r.auditor.Complete(rec, models.AuditSuccess, "")
	return true
}

// monitored reports whether the bot handles messages in this channel:
// DMs, the support channel, and allow-listed threads.
func (r *Router) monitored(msg InboundMessage) bool {
	switch msg.ChannelType {
	case ChannelDM:
		return true
	case ChannelThread:
		return r.allowedThreads[msg.ChannelID]
	default:
		return msg.ChannelID == r.supportChannel
	}
}

// handleUnlinked replies with the link prompt and records a single-shot
// audit row. Unlinked users get no further processing.
func (r *Router) handleUnlinked(ctx context.Context, in *inbound) {
	if _, err := r.adapter.Send(ctx, OutboundMessage{
		ChannelID:     in.msg.ChannelID,
		ReplyToID:     in.msg.MessageID,
		MentionUserID: in.msg.UserID,
		Text:          linkPrompt,
	}); err != nil {
		log.Printf("bot: router: send link prompt: %v", err)
	}
	r.auditor.Record(r.auditRecord(in, models.KindLinkRequest, in.text), models.AuditSuccess, "")
}

func (r *Router) handleClear(ctx context.Context, in *inbound) (bool, error) {
	if err := r.chat.ClearContext(ctx, in.msg.UserID, in.msg.ChannelID); err != nil {
		return true, err
	}
	_, err := r.adapter.Send(ctx, OutboundMessage{
		ChannelID:     in.msg.ChannelID,
		ReplyToID:     in.msg.MessageID,
		MentionUserID: in.msg.UserID,
		Text:          "Context cleared — we're starting fresh.",
	})
	return true, err
}

func (r *Router) handleHelp(ctx context.Context, in *inbound) (bool, error) {
	args := strings.Fields(in.text)[1:]
	_, err := r.adapter.Send(ctx, OutboundMessage{
		ChannelID:     in.msg.ChannelID,
		ReplyToID:     in.msg.MessageID,
		MentionUserID: in.msg.UserID,
		Text:          helpText(args),
	})
	return true, err
}

func (r *Router) handleMark(ctx context.Context, in *inbound) (bool, error) {
	title := strings.TrimSpace(strings.TrimPrefix(in.text, strings.Fields(in.text)[0]))
	return true, r.marks.HandleCommand(ctx, in.msg, in.user, in.token, title)
}

func (r *Router) handleSelection(ctx context.Context, in *inbound) (bool, error) {
	return r.marks.HandleSelection(ctx, in.msg, in.user)
}

func (r *Router) handleChat(ctx context.Context, in *inbound) (bool, error) {
	input := r.cleanChatInput(in)
	if input == "" {
		input = "Hello!"
	}
	reply, err := r.chat.Reply(ctx, in.user, in.msg.UserID, in.msg.ChannelID, input)
	if err != nil {
		return true, err
	}
	_, err = r.adapter.Send(ctx, OutboundMessage{
		ChannelID:     in.msg.ChannelID,
		ReplyToID:     in.msg.MessageID,
		MentionUserID: in.msg.UserID,
		Text:          reply,
	})
	return true, err
}

// isChatTrigger implements the chat-routing predicate: a DM, a bot mention,
// or a chat prefix. Mark/clear/help tokens win earlier in rule order, so a
// DM starting with "!finished" never lands here.
func (r *Router) isChatTrigger(in *inbound) bool {
	return in.msg.ChannelType == ChannelDM || in.msg.MentionsBot || chatPrefixes[in.token]
}

// chatCommandName derives the audited command name for a chat invocation:
// the matched prefix, "@mention", or "dm".
func (r *Router) chatCommandName(in *inbound) string {
	if chatPrefixes[in.token] {
		return in.token
	}
	if in.msg.MentionsBot {
		return "@mention"
	}
	return "dm"
}

// cleanChatInput strips the trigger (mention or prefix) from the message
// and appends a labeled summary of any attachments.
func (r *Router) cleanChatInput(in *inbound) string {
	text := discordMentionRe.ReplaceAllString(in.msg.Text, "")
	text = strings.TrimSpace(text)
	if fields := strings.Fields(text); len(fields) > 0 && chatPrefixes[strings.ToLower(fields[0])] {
		text = strings.TrimSpace(text[len(fields[0]):])
	}

	if len(in.msg.Attachments) > 0 {
		var b strings.Builder
		b.WriteString(text)
		b.WriteString("\n\nAttachments:")
		for _, att := range in.msg.Attachments {
			fmt.Fprintf(&b, "\n- %s (%s)", att.Name, att.URL)
		}
		text = strings.TrimSpace(b.String())
	}
	return text
}

// auditRecord builds the base CommandAudit row for a message.
func (r *Router) auditRecord(in *inbound, kind models.CommandKind, command string) *models.CommandAudit {
	rec := &models.CommandAudit{
		DiscordUserID:   in.msg.UserID,
		DiscordUserName: in.msg.UserName,
		Kind:            kind,
		Command:         command,
		ChannelID:       in.msg.ChannelID,
		ChannelType:     in.msg.ChannelType,
		GuildID:         in.msg.GuildID,
	}
	if in.user != nil {
		rec.UserID = &in.user.ID
	}
	return rec
}

// sendGenericError delivers the apology reply, best-effort.
func (r *Router) sendGenericError(ctx context.Context, msg InboundMessage) {
	if _, err := r.adapter.Send(ctx, OutboundMessage{
		ChannelID:     msg.ChannelID,
		ReplyToID:     msg.MessageID,
		MentionUserID: msg.UserID,
		Text:          genericErrorReply,
	}); err != nil {
		log.Printf("bot: router: send error reply: %v", err)
	}
}

// helpText renders command usage. With a known command argument it returns
// that command's usage line only.
func helpText(args []string) string {
	lines := []struct {
		cmd, desc string
	}{
		{"!finished <title>", "mark a movie, show, or episode as finished watching (also flags it watched in Plex)"},
		{"!notinterested <title>", "mark media as not interested (!skip, !pass)"},
		{"!keep <title>", "mark media as keep forever (!favorite, !fav)"},
		{"!rewatch <title>", "mark media as a rewatch candidate"},
		{"!badquality <title>", "flag media as poor quality (!lowquality)"},
		{"!clear", "reset our conversation context (!reset, !clearcontext)"},
		{"!assistant <question>", "ask the assistant (!bot, !support) — or just DM/@mention me"},
		{"!help", "this message (!commands)"},
	}

	if len(args) > 0 {
		want := strings.ToLower(strings.TrimPrefix(args[0], "!"))
		for _, l := range lines {
			if strings.HasPrefix(strings.TrimPrefix(l.cmd, "!"), want) {
				return fmt.Sprintf("`%s` — %s", l.cmd, l.desc)
			}
		}
	}

	var b strings.Builder
	b.WriteString("**Matinee commands**\n")
	for _, l := range lines {
		fmt.Fprintf(&b, "`%s` — %s\n", l.cmd, l.desc)
	}
	b.WriteString("After a search with several matches, reply with a number (1-5) to pick one.")
	return b.String()
}
