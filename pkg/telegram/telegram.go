// Package telegram is the chat transport: it parses user commands, calls the
// feed service and renders replies. All feed semantics live in pkg/bot, this
// layer is text in, text out.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/umputun/feedbot/pkg/bot"
	"github.com/umputun/feedbot/pkg/feed"
	"github.com/umputun/feedbot/pkg/store"
)

// Service is the command surface of the feed core.
type Service interface {
	AddFeed(ctx context.Context, name, url string) (*feed.Feed, error)
	Feeds() []*feed.Feed
	RemoveFeed(nameOrURL string) (string, error)
	AddFilter(feedName, term string) error
	RemoveFilter(feedName string, index int) (feed.Filter, error)
	SetAgeFilter(feedName string, minutes float64) error
	DumpFeed(ctx context.Context, feedName string, limit int) ([]feed.Entry, error)
	DumpAll(ctx context.Context) []bot.DumpResult
}

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Bot handles Telegram commands for the feed service.
type Bot struct {
	sender        telegramAPI
	service       Service
	updateTimeout int
}

// New creates a Bot with the given Telegram token.
func New(token string, service Service, updateTimeout int) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return &Bot{sender: api, service: service, updateTimeout: updateTimeout}, nil
}

// Run starts the long-polling loop, blocking until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.updateTimeout

	updates := b.sender.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.sender.StopReceivingUpdates()
			return
		case update := <-updates:
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			b.handleCommand(ctx, update.Message)
		}
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID

	log.Printf("[DEBUG] command %q args %q chat %d", cmd, args, chatID)

	switch cmd {
	case "start", "help":
		b.reply(chatID, helpText)
	case "add_feed":
		b.handleAddFeed(ctx, chatID, args)
	case "list_feeds":
		b.reply(chatID, FormatFeedList(b.service.Feeds()))
	case "remove_feed":
		b.handleRemoveFeed(chatID, args)
	case "add_filter":
		b.handleAddFilter(chatID, args)
	case "remove_filter":
		b.handleRemoveFilter(chatID, args)
	case "set_age_filter":
		b.handleSetAgeFilter(chatID, args)
	case "dump_feed":
		b.handleDumpFeed(ctx, chatID, args)
	case "dump_all":
		b.handleDumpAll(ctx, chatID)
	default:
		b.reply(chatID, "Sorry? Try /help.")
	}
}

func (b *Bot) handleAddFeed(ctx context.Context, chatID int64, args string) {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		b.reply(chatID, "Usage: /add_feed <name> <url>, e.g. /add_feed sec http://seclist.example/rss")
		return
	}
	name, url := fields[0], fields[1]
	if !strings.Contains(url, "://") {
		url = "http://" + url
	}

	f, err := b.service.AddFeed(ctx, name, url)
	if err != nil && f == nil {
		b.replyErr(chatID, err)
		return
	}

	text := fmt.Sprintf("Okay! Monitoring %q (%s).", f.Name, f.URL)
	if err != nil { // feed added, save failed
		text += "\n" + unsavedWarning(err)
	}
	b.reply(chatID, text)
}

func (b *Bot) handleRemoveFeed(chatID int64, args string) {
	if args == "" {
		b.reply(chatID, "Usage: /remove_feed <name or url>")
		return
	}
	name, err := b.service.RemoveFeed(args)
	if err != nil {
		b.replyErr(chatID, err)
		return
	}
	b.reply(chatID, fmt.Sprintf("You're dead to me, %s. Dead.", name))
}

func (b *Bot) handleAddFilter(chatID int64, args string) {
	// syntax: /add_filter <feed> not: <search term>
	head, term, found := strings.Cut(args, ":")
	fields := strings.Fields(head)
	if !found || len(fields) != 2 || !strings.EqualFold(fields[1], "not") {
		b.reply(chatID, "Usage: /add_filter <feed> not: <search term>, e.g. /add_filter sec not: acme widgets")
		return
	}
	feedName, term := fields[0], strings.TrimSpace(term)

	if err := b.service.AddFilter(feedName, term); err != nil {
		if !errors.Is(err, store.ErrPersistence) {
			b.replyErr(chatID, err)
			return
		}
		b.reply(chatID, unsavedWarning(err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Added not %q filter to the %s feed.", term, feedName))
}

func (b *Bot) handleRemoveFilter(chatID int64, args string) {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		b.reply(chatID, "Usage: /remove_filter <feed> <filter index>, see /list_feeds for indexes")
		return
	}
	index, err := strconv.Atoi(fields[1])
	if err != nil {
		b.reply(chatID, "Filter index must be a number, see /list_feeds.")
		return
	}

	removed, err := b.service.RemoveFilter(fields[0], index)
	if err != nil {
		b.replyErr(chatID, err)
		return
	}
	b.reply(chatID, fmt.Sprintf("Removed %s filter from the %s feed.", removed.Describe(), fields[0]))
}

func (b *Bot) handleSetAgeFilter(chatID int64, args string) {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		b.reply(chatID, "Usage: /set_age_filter <feed> <minutes>")
		return
	}
	minutes, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		b.reply(chatID, "Minutes must be a number.")
		return
	}

	if err := b.service.SetAgeFilter(fields[0], minutes); err != nil {
		if !errors.Is(err, store.ErrPersistence) {
			b.replyErr(chatID, err)
			return
		}
		b.reply(chatID, unsavedWarning(err))
		return
	}
	b.reply(chatID, "Okay!")
}

func (b *Bot) handleDumpFeed(ctx context.Context, chatID int64, args string) {
	fields := strings.Fields(args)
	if len(fields) != 1 && len(fields) != 2 {
		b.reply(chatID, "Usage: /dump_feed <feed> [stories]")
		return
	}

	limit := 0
	if len(fields) == 2 {
		n, err := strconv.Atoi(fields[1])
		if err != nil || n < 1 {
			b.reply(chatID, "Story count must be a positive number.")
			return
		}
		limit = n
	}

	entries, err := b.service.DumpFeed(ctx, fields[0], limit)
	if err != nil {
		b.replyErr(chatID, err)
		return
	}
	b.reply(chatID, FormatDump(fields[0], entries))
}

func (b *Bot) handleDumpAll(ctx context.Context, chatID int64) {
	results := b.service.DumpAll(ctx)
	if len(results) == 0 {
		b.reply(chatID, noFeedsText)
		return
	}
	for _, res := range results {
		if res.Err != nil {
			b.reply(chatID, fmt.Sprintf("Feed %s failed: %v", res.Feed, res.Err))
			continue
		}
		b.reply(chatID, FormatDump(res.Feed, res.Entries))
	}
}

// replyErr translates core errors into user-facing messages
func (b *Bot) replyErr(chatID int64, err error) {
	var text string
	switch {
	case errors.Is(err, feed.ErrUnknownFeed):
		text = "Sorry, couldn't find that feed. You may want to use /list_feeds."
	case errors.Is(err, feed.ErrValidation):
		text = fmt.Sprintf("That doesn't work: %v", err)
	case errors.Is(err, feed.ErrFeedData):
		text = fmt.Sprintf("There was a problem parsing that feed: %v", err)
	case errors.Is(err, store.ErrPersistence):
		text = unsavedWarning(err)
	default:
		text = fmt.Sprintf("Something went wrong: %v", err)
	}
	b.reply(chatID, text)
}

func (b *Bot) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.sender.Send(msg); err != nil {
		log.Printf("[WARN] can't send message to %d: %v", chatID, err)
	}
}

func unsavedWarning(err error) string {
	return fmt.Sprintf("Warning: the change is applied but could not be saved, it will be lost on restart (%v).", err)
}

const helpText = `Feed management:
/add_feed <name> <url> — monitor a new feed
/list_feeds — show monitored feeds and their filters
/remove_feed <name or url> — stop monitoring

Filters:
/add_filter <feed> not: <term> — hide stories containing the term
/remove_filter <feed> <index> — drop a filter by its /list_feeds index
/set_age_filter <feed> <minutes> — hide stories older than the window

Stories:
/dump_feed <feed> [n] — show up to n new stories from a feed
/dump_all — show new stories from every feed`

const noFeedsText = "Not currently monitoring any feeds. Add some with the /add_feed command!"
