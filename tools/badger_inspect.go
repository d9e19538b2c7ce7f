package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/olekukonko/tablewriter"

	"telecare/domain"
)

// Offline inspection of the message store. Opens the DB read-only so it can
// run next to a live server.
func main() {
	dbPath := flag.String("db", "/tmp/telecare/badger", "Path to badger DB")
	// Default scans primary message records, skipping msgid: and unread: keys
	prefix := flag.String("prefix", "msg:", "Prefix to scan")
	flag.Parse()

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "ID", "From", "To", "Kind", "Status", "At", "Content"})
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

	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()

			// Index and counter keys hold no message body
			key := string(item.Key())
			if strings.HasPrefix(key, "msgid:") || strings.HasPrefix(key, "unread:") {
				continue
			}

			err := item.Value(func(v []byte) error {
				var msg domain.Message
				if err := json.Unmarshal(v, &msg); err != nil {
					// Log the bad record and keep scanning
					fmt.Printf("Error unmarshaling key %s: %v\n", key, err)
					return nil
				}

				content := msg.Content
				if len(content) > 40 {
					content = content[:40] + "..."
				}
				displayID := msg.ID.String()[:8]

				table.Append([]string{
					key,
					displayID,
					msg.SenderID,
					msg.RecipientID,
					string(msg.Kind),
					string(msg.Status),
					msg.CreatedAt.Format("15:04:05"),
					content,
				})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})

	if err != nil {
		log.Fatal(err)
	}

	table.Render()
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true).
		WithValueLogFileSize(10 * 1024 * 1024)

	return badger.Open(opts)
}
