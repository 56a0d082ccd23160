// Package console is the line-oriented control surface of the daemon. Each
// input line is one command; bus events are echoed as they happen.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/tejashwikalptaru/adzantune/internal/domain"
	"github.com/tejashwikalptaru/adzantune/internal/ports"
	"github.com/tejashwikalptaru/adzantune/internal/service"
)

// DefaultRecentLimit is how many recently played items "recent" lists.
const DefaultRecentLimit = 10

// ErrQuit is returned by Execute for quit and exit.
var ErrQuit = errors.New("quit")

// Catalog lists the playable local files as item ids.
type Catalog interface {
	Tracks(ctx context.Context) ([]string, error)
	Ads(ctx context.Context) ([]string, error)
}

// Deps holds the components the console drives.
type Deps struct {
	Logger     *slog.Logger
	Bus        ports.EventBus
	Arbitrator *service.Arbitrator
	Queue      *service.QueueEngine
	Local      *service.LocalPlayer
	Scheduler  *service.Scheduler
	Remote     ports.RemoteSession // nil when remote playback is off
	Catalog    Catalog
}

// Console reads commands and writes replies and event echoes to out.
type Console struct {
	logger     *slog.Logger
	bus        ports.EventBus
	arbitrator *service.Arbitrator
	queue      *service.QueueEngine
	local      *service.LocalPlayer
	scheduler  *service.Scheduler
	remote     ports.RemoteSession
	catalog    Catalog

	out   io.Writer
	outMu sync.Mutex
	subs  []domain.SubscriptionID
}

// New creates a console writing to out and subscribes it to the bus.
func New(deps Deps, out io.Writer) *Console {
	c := &Console{
		logger:     deps.Logger,
		bus:        deps.Bus,
		arbitrator: deps.Arbitrator,
		queue:      deps.Queue,
		local:      deps.Local,
		scheduler:  deps.Scheduler,
		remote:     deps.Remote,
		catalog:    deps.Catalog,
		out:        out,
	}

	for _, t := range []domain.EventType{
		domain.EventStatusChanged,
		domain.EventNotification,
		domain.EventTrackStarted,
		domain.EventIqomahStart,
		domain.EventAdStarted,
		domain.EventAuthRequired,
	} {
		c.subs = append(c.subs, c.bus.Subscribe(t, c.onEvent))
	}
	return c
}

// Close detaches the console from the bus.
func (c *Console) Close() {
	for _, id := range c.subs {
		c.bus.Unsubscribe(id)
	}
	c.subs = nil
}

// Run executes lines from in until EOF, quit, or ctx is cancelled.
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	scanErr := make(chan error, 1)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	c.printf("AdzanTune console. Type \"help\" for commands.\n")
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			if err := c.Execute(ctx, line); errors.Is(err, ErrQuit) {
				return nil
			}
		}
	}
}

// Execute runs one command line. Command errors are printed, not returned;
// only ErrQuit is returned.
func (c *Console) Execute(ctx context.Context, line string) error {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}

	command := strings.ToLower(parts[0])
	args := parts[1:]

	var err error
	switch command {
	case "play":
		err = c.cmdPlay(ctx, args)
	case "pause":
		err = c.arbitrator.Pause(ctx)
	case "resume":
		err = c.arbitrator.Resume(ctx)
	case "toggle":
		err = c.arbitrator.TogglePlay(ctx)
	case "next":
		err = c.arbitrator.Next(ctx)
	case "prev", "previous":
		err = c.arbitrator.Previous(ctx)
	case "seek":
		err = c.cmdSeek(ctx, args)
	case "vol", "volume":
		err = c.cmdVolume(ctx, args)
	case "shuffle":
		err = c.cmdShuffle(ctx)
	case "repeat":
		err = c.cmdRepeat(ctx)
	case "ad":
		err = c.cmdAd(ctx, args)
	case "stop-ad":
		if !c.arbitrator.StopAd() {
			c.printf("no advertisement is playing\n")
		}
	case "adzan":
		err = c.arbitrator.TriggerAnnouncement(strings.Join(args, " "))
	case "dismiss":
		if !c.arbitrator.Dismiss() {
			c.printf("nothing to dismiss\n")
		}
	case "login":
		err = c.cmdLogin(ctx)
	case "status":
		c.cmdStatus()
	case "queue":
		err = c.cmdQueue(ctx)
	case "recent":
		err = c.cmdRecent(ctx, args)
	case "next-prayer":
		err = c.cmdNextPrayer(ctx)
	case "library", "ls":
		err = c.cmdLibrary(ctx, args)
	case "help":
		c.printf("%s", helpText)
	case "quit", "exit":
		return ErrQuit
	default:
		c.printf("unknown command %q (try \"help\")\n", command)
		return nil
	}

	if err != nil {
		c.logger.Debug("console command failed", slog.String("command", command), slog.Any("error", err))
		c.printf("error: %v\n", err)
	}
	return nil
}

const helpText = `commands:
  play [item...]           play items, a remote context, or the last played item
  pause | resume | toggle  control normal playback
  next | prev              skip within the queue or on the remote device
  seek <sec|mm:ss>         seek the current item
  vol <0-100>              set the normal playback volume
  shuffle | repeat         toggle shuffle, cycle repeat off/all/one
  ad <file>                play an advertisement from the ads directory
  stop-ad                  end the advertisement early
  adzan [label]            start an announcement now
  dismiss                  stop the current announcement, countdown or ad
  login                    reconnect the remote session
  status                   show arbitration and playback state
  queue | recent [n]       show the play queue or recently played remote items
  next-prayer              show the next prayer time today
  library [ads]            list playable files in the music or ads directory
  quit                     leave the console
`

// itemID expands bare file names to local track identifiers.
func itemID(arg string) string {
	if strings.Contains(arg, ":") {
		return arg
	}
	return domain.LocalTrackPrefix + arg
}

func (c *Console) cmdPlay(ctx context.Context, args []string) error {
	items := lo.Map(lo.Compact(args), func(arg string, _ int) string { return itemID(arg) })

	switch {
	case len(items) == 0:
		return c.arbitrator.Play(ctx, domain.PlayRequest{})
	case domain.IsRemoteContext(items[0]):
		req := domain.PlayRequest{ContextID: items[0]}
		if len(items) > 1 {
			req.OffsetID = items[1]
		}
		return c.arbitrator.Play(ctx, req)
	case len(items) == 1:
		return c.arbitrator.Play(ctx, domain.PlayRequest{ItemID: items[0]})
	default:
		return c.arbitrator.Play(ctx, domain.PlayRequest{Items: items})
	}
}

// parsePosition accepts seconds ("95") or minutes and seconds ("1:35").
func parsePosition(arg string) (time.Duration, error) {
	if m, s, ok := strings.Cut(arg, ":"); ok {
		minutes, err := strconv.Atoi(m)
		if err != nil {
			return 0, domain.NewValidationError("position", arg, "expected mm:ss")
		}
		seconds, err := strconv.Atoi(s)
		if err != nil || seconds >= 60 {
			return 0, domain.NewValidationError("position", arg, "expected mm:ss")
		}
		return time.Duration(minutes)*time.Minute + time.Duration(seconds)*time.Second, nil
	}

	seconds, err := strconv.ParseFloat(arg, 64)
	if err != nil {
		return 0, domain.NewValidationError("position", arg, "expected seconds or mm:ss")
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

func (c *Console) cmdSeek(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return domain.NewValidationError("seek", strings.Join(args, " "), "usage: seek <sec|mm:ss>")
	}
	position, err := parsePosition(args[0])
	if err != nil {
		return err
	}
	return c.arbitrator.Seek(ctx, position)
}

func (c *Console) cmdVolume(ctx context.Context, args []string) error {
	if len(args) != 1 {
		c.printf("volume: %d\n", int(c.local.Volume()*100+0.5))
		return nil
	}
	percent, err := strconv.Atoi(strings.TrimSuffix(args[0], "%"))
	if err != nil || percent < 0 || percent > 100 {
		return domain.NewValidationError("volume", args[0], "expected 0-100")
	}
	return c.arbitrator.SetVolume(ctx, float64(percent)/100)
}

func (c *Console) cmdShuffle(ctx context.Context) error {
	shuffle, err := c.arbitrator.ToggleShuffle(ctx)
	if err != nil {
		return err
	}
	c.printf("shuffle: %s\n", onOff(shuffle))
	return nil
}

func (c *Console) cmdRepeat(ctx context.Context) error {
	mode, err := c.arbitrator.ToggleRepeat(ctx)
	if err != nil {
		return err
	}
	c.printf("repeat: %s\n", mode)
	return nil
}

func (c *Console) cmdAd(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return domain.NewValidationError("ad", strings.Join(args, " "), "usage: ad <file>")
	}
	adID := args[0]
	if !domain.IsAdItem(adID) {
		adID = domain.LocalAdPrefix + adID
	}
	return c.arbitrator.PlayAd(ctx, adID)
}

func (c *Console) cmdLogin(ctx context.Context) error {
	readiness, err := c.arbitrator.ConnectRemote(ctx)
	if err != nil {
		return err
	}
	c.printf("remote ready=%t premium=%t device=%s\n", readiness.Ready, readiness.Premium, readiness.DeviceID)
	return nil
}

func (c *Console) cmdStatus() {
	normal := c.arbitrator.Normal()

	var b strings.Builder
	fmt.Fprintf(&b, "status:   %s\n", c.arbitrator.Status())
	if ic := c.arbitrator.Interruption(); ic != nil {
		fmt.Fprintf(&b, "          %s since %s\n", ic.Label, ic.StartedAt.Format("15:04:05"))
	}

	playing := "stopped"
	switch {
	case normal.Kind == domain.NormalNone:
	case normal.Paused:
		playing = "paused"
	default:
		playing = "playing"
	}
	fmt.Fprintf(&b, "normal:   %s (%s)", normal.Source(), playing)
	if normal.Kind == domain.NormalRemote {
		fmt.Fprintf(&b, " on %s", normal.DeviceID)
	}
	b.WriteString("\n")

	if state := c.local.State(); state.ItemID != "" {
		title := state.ItemID
		if state.Track != nil && state.Track.Title != "" {
			title = state.Track.Title
		}
		fmt.Fprintf(&b, "local:    %s %s/%s\n", title, formatPosition(state.Position), formatPosition(state.Duration))
	}

	fmt.Fprintf(&b, "modes:    shuffle %s, repeat %s\n", onOff(c.queue.Shuffle()), c.queue.Repeat())
	if c.arbitrator.NeedsLogin() {
		b.WriteString("remote:   login required\n")
	}
	c.printf("%s", b.String())
}

func (c *Console) cmdQueue(ctx context.Context) error {
	state := c.queue.State()
	if len(state.Items) == 0 {
		c.printf("queue is empty\n")
	}
	for i, item := range state.Items {
		marker := " "
		if i == state.Cursor {
			marker = ">"
		}
		c.printf("%s %2d  %s\n", marker, i+1, item)
	}

	if c.remote == nil || c.arbitrator.Normal().Kind != domain.NormalRemote {
		return nil
	}
	upcoming, err := c.remote.Queue(ctx)
	if err != nil {
		return fmt.Errorf("remote queue: %w", err)
	}
	if len(upcoming) > 0 {
		c.printf("remote up next:\n")
	}
	for i, item := range upcoming {
		c.printf("  %2d  %s\n", i+1, remoteLabel(item))
	}
	return nil
}

func (c *Console) cmdRecent(ctx context.Context, args []string) error {
	if c.remote == nil {
		return domain.ErrRemoteNotReady
	}
	limit := DefaultRecentLimit
	if len(args) == 1 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return domain.NewValidationError("recent", args[0], "expected a positive count")
		}
		limit = n
	}

	items, err := c.remote.RecentlyPlayed(ctx, limit)
	if err != nil {
		return fmt.Errorf("recently played: %w", err)
	}
	if len(items) == 0 {
		c.printf("nothing played recently\n")
	}
	for _, item := range items {
		c.printf("%s  %s\n", item.PlayedAt.Local().Format("01-02 15:04"), remoteLabel(item))
	}
	return nil
}

func (c *Console) cmdNextPrayer(ctx context.Context) error {
	prayer, ok, err := c.scheduler.NextPrayer(ctx)
	if err != nil {
		return err
	}
	if !ok {
		c.printf("no more prayers today\n")
		return nil
	}
	c.printf("next prayer: %s at %s\n", prayer.Name, prayer.Time)
	return nil
}

func (c *Console) cmdLibrary(ctx context.Context, args []string) error {
	if c.catalog == nil {
		return domain.ErrBasePathUnset
	}
	list := c.catalog.Tracks
	prefix := domain.LocalTrackPrefix
	if len(args) == 1 && strings.EqualFold(args[0], "ads") {
		list, prefix = c.catalog.Ads, domain.LocalAdPrefix
	}

	ids, err := list(ctx)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		c.printf("no playable files\n")
	}
	for _, id := range ids {
		c.printf("  %s\n", strings.TrimPrefix(id, prefix))
	}
	return nil
}

func (c *Console) onEvent(event domain.Event) {
	switch e := event.(type) {
	case domain.StatusChangedEvent:
		c.printf("* status %s -> %s\n", e.From, e.To)
	case domain.NotificationEvent:
		c.printf("* [%s] %s\n", e.Level, e.Message)
	case domain.TrackStartedEvent:
		title := e.Track.Title
		if title == "" {
			title = e.Track.ItemID
		}
		if e.Track.Artist != "" {
			title = e.Track.Artist + " - " + title
		}
		c.printf("* now playing %s\n", title)
	case domain.IqomahStartEvent:
		c.printf("* iqomah for %s in %s\n", e.Prayer, e.Delay)
	case domain.AdStartedEvent:
		c.printf("* advertisement %s\n", strings.TrimPrefix(e.AdID, domain.LocalAdPrefix))
	case domain.AuthRequiredEvent:
		c.printf("* remote login required: run \"login\" after re-authorizing\n")
	}
}

func (c *Console) printf(format string, args ...any) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func remoteLabel(item domain.RemoteItem) string {
	if item.Name == "" {
		return item.URI
	}
	return item.Name + " (" + item.URI + ")"
}

func formatPosition(d time.Duration) string {
	d = d.Round(time.Second)
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
