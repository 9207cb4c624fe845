package main

import (
	"chat-relay/domain"
	"chat-relay/repositories"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/mama165/sdk-go/database"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
)

// inspect prints, for every user and channel, how many messages are stored
// against the retention cap, plus the hashtag list of each channel.
// The store is opened read-only. Badger holds a directory lock, so the relay
// must be stopped first unless it runs at debug level, where it bypasses the lock.
func main() {
	dbPath := flag.String("db", database.DefaultPath, "Path to badger DB")
	userCap := flag.Int("user-cap", 50, "Retention cap per user")
	channelCap := flag.Int("channel-cap", 250, "Retention cap per channel")
	flag.Parse()

	db, err := badger.Open(badger.DefaultOptions(*dbPath).
		WithReadOnly(true).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	repository := repositories.NewMessageRepository(db, logs.GetLoggerFromLevel(slog.LevelWarn))
	usage, err := repository.Usage()
	if err != nil {
		log.Fatal(err)
	}

	scopes := make([]domain.Scope, 0, len(usage))
	for scope := range usage {
		scopes = append(scopes, scope)
	}
	sort.Slice(scopes, func(i, j int) bool { return scopes[i].String() < scopes[j].String() })

	table := newTable([]string{"Scope", "ID", "Messages", "Cap", "Hashtags"})
	for _, scope := range scopes {
		count := usage[scope]
		limit := *userCap
		hashtags := ""
		if scope.Kind == domain.ScopeChannel {
			limit = *channelCap
			tags, err := repository.ChannelHashtags(scope.ID)
			if err != nil {
				log.Fatal(err)
			}
			hashtags = strings.Join(tags, " ")
		}
		table.Append([]string{
			string(scope.Kind),
			scope.ID,
			renderCount(count, limit),
			fmt.Sprint(limit),
			hashtags,
		})
	}
	table.Render()
}

func newTable(header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}

// renderCount highlights scopes above their cap, which only happens while
// a retention pass is pending or after a failed one.
func renderCount(count, limit int) string {
	text := fmt.Sprint(count)
	if count > limit {
		return color.New(color.FgRed, color.OpBold).Render(text)
	}
	return color.New(color.FgGreen).Render(text)
}
