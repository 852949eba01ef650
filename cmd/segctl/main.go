// Package main provides the control CLI entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	"github.com/pterm/pterm"

	apiconnect "github.com/osa030/segue/internal/api/connect"
	"github.com/osa030/segue/internal/app/nowplaying"
)

var (
	app     = kingpin.New("segctl", "segue playback control client")
	server  = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	token   = app.Flag("token", "Control token (or set SEGUE_TOKEN env)").Envar("SEGUE_TOKEN").String()
	timeout = app.Flag("timeout", "Request timeout").Default("10s").Duration()

	statusCmd = app.Command("status", "Show playback status")
	queueCmd  = app.Command("queue", "Show the queue in play order")
	statsCmd  = app.Command("stats", "Show engine counters")

	playCmd    = app.Command("play", "Replace the queue with tracks")
	playTracks = playCmd.Arg("track-id", "Track IDs").Required().Strings()
	playStart  = playCmd.Flag("start", "Index of the first track to play").Default("0").Int()

	playlistCmd   = app.Command("playlist", "Replace the queue with a playlist")
	playlistID    = playlistCmd.Arg("playlist", "Playlist ID or URL").Required().String()
	playlistStart = playlistCmd.Flag("start", "Index of the first track to play").Default("0").Int()

	toggleCmd   = app.Command("toggle", "Toggle play/pause").Alias("pause")
	nextCmd     = app.Command("next", "Skip to the next track")
	previousCmd = app.Command("previous", "Restart or go to the previous track").Alias("prev")

	seekCmd = app.Command("seek", "Seek within the current track")
	seekTo  = seekCmd.Arg("position", "Position (e.g. 1m30s)").Required().Duration()

	insertCmd   = app.Command("insert", "Queue a track after the current one")
	insertTrack = insertCmd.Arg("track-id", "Track ID").Required().String()

	appendCmd   = app.Command("append", "Queue a track at the end").Alias("add")
	appendTrack = appendCmd.Arg("track-id", "Track ID").Required().String()

	removeCmd = app.Command("remove", "Remove the entry at a queue position").Alias("rm")
	removeAt  = removeCmd.Arg("position", "Queue position").Required().Int()

	moveCmd  = app.Command("move", "Move an entry")
	moveFrom = moveCmd.Arg("from", "Current queue position").Required().Int()
	moveTo   = moveCmd.Arg("to", "New queue position").Required().Int()

	jumpCmd = app.Command("jump", "Play the entry at a queue position")
	jumpTo  = jumpCmd.Arg("position", "Queue position").Required().Int()

	shuffleCmd = app.Command("shuffle", "Toggle shuffle")

	repeatCmd  = app.Command("repeat", "Cycle or set the repeat mode")
	repeatMode = repeatCmd.Arg("mode", "off, all or one (cycles when omitted)").Enum("off", "all", "one")

	clearCmd = app.Command("clear", "Clear the queue and stop")

	watchCmd = app.Command("watch", "Follow now-playing notifications")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if *token == "" {
		pterm.Error.Println("control token is required (use --token or SEGUE_TOKEN env)")
		os.Exit(1)
	}

	client := apiconnect.NewClient(http.DefaultClient, *server, *token)

	if command == watchCmd.FullCommand() {
		exitOnError(watch(client))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	exitOnError(execute(ctx, client, command))
}

func execute(ctx context.Context, client *apiconnect.Client, command string) error {
	switch command {
	case statusCmd.FullCommand():
		return showStatus(client.Status(ctx))
	case queueCmd.FullCommand():
		q, err := client.Queue(ctx)
		if err != nil {
			return err
		}
		printQueue(q)
	case statsCmd.FullCommand():
		s, err := client.Stats(ctx)
		if err != nil {
			return err
		}
		return pterm.DefaultTable.WithHasHeader().WithData(pterm.TableData{
			{"Counter", "Value"},
			{"False end signals", strconv.Itoa(s.FalseEndSignals)},
			{"Restart corrections", strconv.Itoa(s.RestartCorrections)},
			{"Window rebuilds", strconv.Itoa(s.Rebuilds)},
			{"Window advances", strconv.Itoa(s.WindowAdvances)},
			{"Retries", strconv.Itoa(s.Retries)},
			{"Replays", strconv.Itoa(s.Replays)},
			{"Failures", strconv.Itoa(s.Failures)},
		}).Render()
	case playCmd.FullCommand():
		if err := client.Play(ctx, *playTracks, *playStart); err != nil {
			return err
		}
		pterm.Success.Printfln("Playing %d track(s)", len(*playTracks))
	case playlistCmd.FullCommand():
		resp, err := client.PlayPlaylist(ctx, *playlistID, *playlistStart)
		if err != nil {
			return err
		}
		pterm.Success.Printfln("Playing %q: %d track(s) queued, %d skipped", resp.Name, resp.Queued, resp.Skipped)
	case toggleCmd.FullCommand():
		return showStatus(client.TogglePlayPause(ctx))
	case nextCmd.FullCommand():
		return showStatus(client.Next(ctx))
	case previousCmd.FullCommand():
		return showStatus(client.Previous(ctx))
	case seekCmd.FullCommand():
		return showStatus(client.Seek(ctx, *seekTo))
	case insertCmd.FullCommand():
		e, err := client.InsertNext(ctx, *insertTrack)
		return showEntry("Inserted", e, err)
	case appendCmd.FullCommand():
		e, err := client.Append(ctx, *appendTrack)
		return showEntry("Appended", e, err)
	case removeCmd.FullCommand():
		e, err := client.Remove(ctx, *removeAt)
		return showEntry("Removed", e, err)
	case moveCmd.FullCommand():
		q, err := client.Move(ctx, *moveFrom, *moveTo)
		if err != nil {
			return err
		}
		printQueue(q)
	case jumpCmd.FullCommand():
		return showStatus(client.JumpTo(ctx, *jumpTo))
	case shuffleCmd.FullCommand():
		on, err := client.ToggleShuffle(ctx)
		if err != nil {
			return err
		}
		pterm.Info.Printfln("Shuffle: %v", on)
	case repeatCmd.FullCommand():
		var (
			mode string
			err  error
		)
		if *repeatMode == "" {
			mode, err = client.CycleRepeat(ctx)
		} else {
			mode, err = client.SetRepeat(ctx, *repeatMode)
		}
		if err != nil {
			return err
		}
		pterm.Info.Printfln("Repeat: %s", mode)
	case clearCmd.FullCommand():
		if err := client.Clear(ctx); err != nil {
			return err
		}
		pterm.Success.Println("Queue cleared")
	}
	return nil
}

func showStatus(s *apiconnect.StatusResponse, err error) error {
	if err != nil {
		return err
	}

	pterm.DefaultSection.Println("Playback")
	data := pterm.TableData{
		{"State", s.State},
		{"Queue", fmt.Sprintf("%d / %d", s.QueuePosition+1, s.QueueLength)},
		{"Repeat", s.Repeat},
		{"Shuffle", strconv.FormatBool(s.Shuffle)},
	}
	if s.Current != nil {
		data = append(data,
			[]string{"Track", trackLabel(s.Current.Track)},
			[]string{"Position", fmt.Sprintf("%s / %s", formatDuration(s.Position()), formatDuration(s.Duration()))},
		)
	}
	if s.IsBuffering {
		data = append(data, []string{"Buffering", "yes"})
	}
	if s.LastError != "" {
		data = append(data, []string{"Last error", s.LastError})
	}
	if err := pterm.DefaultTable.WithData(data).Render(); err != nil {
		return err
	}

	if len(s.Window) > 0 {
		pterm.DefaultSection.Println("Buffer window")
		window := pterm.TableData{{"Slot", "Track", "Status"}}
		for i, slot := range s.Window {
			window = append(window, []string{strconv.Itoa(i), slot.TrackID, slot.Status})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(window).Render()
	}
	return nil
}

func showEntry(verb string, e *apiconnect.EntryInfo, err error) error {
	if err != nil {
		return err
	}
	pterm.Success.Printfln("%s %s", verb, trackLabel(e.Track))
	return nil
}

func printQueue(q *apiconnect.QueueResponse) {
	if len(q.Entries) == 0 {
		pterm.Info.Println("Queue is empty")
		return
	}
	data := pterm.TableData{{"", "#", "Track", "Duration"}}
	for i, e := range q.Entries {
		marker := ""
		if i == q.Position {
			marker = ">"
		}
		data = append(data, []string{
			marker,
			strconv.Itoa(i),
			trackLabel(e.Track),
			formatDuration(time.Duration(e.Track.DurationMs) * time.Millisecond),
		})
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	pterm.Info.Printfln("Repeat: %s  Shuffle: %v", q.Repeat, q.Shuffle)
}

// watch prints now-playing notifications until interrupted.
func watch(client *apiconnect.Client) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return client.SubscribeNowPlaying(ctx, func(n *nowplaying.Notification) {
		switch n.Kind {
		case nowplaying.KindUpdate:
			s := n.Snapshot
			pterm.Info.Printfln("[%d] %s %s - %s (%s / %s)", n.SequenceNo, s.State, s.Artist, s.Title,
				formatDuration(s.Position), formatDuration(s.Duration))
		case nowplaying.KindError:
			pterm.Warning.Printfln("[%d] error: %s", n.SequenceNo, n.Error)
		case nowplaying.KindClear:
			pterm.Info.Printfln("[%d] stopped", n.SequenceNo)
		}
	})
}

func trackLabel(t apiconnect.TrackInfo) string {
	if t.Title == "" {
		return t.ID
	}
	if t.Artist == "" {
		return t.Title
	}
	return t.Artist + " - " + t.Title
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

func exitOnError(err error) {
	if err != nil {
		pterm.Error.Printfln("%v", err)
		os.Exit(1)
	}
}
