// Command inspect dumps conversations and messages straight from the
// badger store. Operator tool; the server does not need to be running
// (open the store read-only while it is).
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
)

type diskMessage struct {
	ID           string `cbor:"id"`
	Conversation string `cbor:"conversation"`
	Sender       string `cbor:"sender"`
	Content      string `cbor:"content"`
	At           int64  `cbor:"at"`
}

type diskConversation struct {
	ID           string   `cbor:"id"`
	TicketID     string   `cbor:"ticket"`
	Participants []string `cbor:"participants"`
	CreatedAt    int64    `cbor:"created_at"`
}

func main() {
	dbPath := flag.String("db", "./data/deskchat", "Path to badger DB")
	conversation := flag.String("conversation", "", "Only show messages of this conversation id")
	flag.Parse()

	db, err := badger.Open(badger.DefaultOptions(*dbPath).
		WithReadOnly(true).
		WithLoggingLevel(badger.ERROR))
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	if *conversation == "" {
		color.Bold.Println("Conversations")
		dumpConversations(db)
	}

	color.Bold.Println("Messages")
	prefix := "msg:"
	if *conversation != "" {
		prefix = fmt.Sprintf("msg:%s:", *conversation)
	}
	dumpMessages(db, prefix)
}

func dumpConversations(db *badger.DB) {
	table := newTable([]string{"Id", "Ticket", "Participants", "Created At"})
	err := scan(db, "conv:", func(value []byte) error {
		var dc diskConversation
		if err := cbor.Unmarshal(value, &dc); err != nil {
			return err
		}
		table.Append([]string{
			dc.ID,
			dc.TicketID,
			fmt.Sprintf("%v", dc.Participants),
			time.Unix(dc.CreatedAt, 0).UTC().Format(time.RFC3339),
		})
		return nil
	})
	if err != nil {
		log.Fatal("Scan failed: ", err)
	}
	table.Render()
}

func dumpMessages(db *badger.DB, prefix string) {
	table := newTable([]string{"Id", "Conversation", "Sender", "Content", "Created At"})
	err := scan(db, prefix, func(value []byte) error {
		var dm diskMessage
		if err := cbor.Unmarshal(value, &dm); err != nil {
			return err
		}
		table.Append([]string{
			dm.ID,
			dm.Conversation,
			dm.Sender,
			dm.Content,
			time.Unix(0, dm.At).UTC().Format(time.RFC3339Nano),
		})
		return nil
	})
	if err != nil {
		log.Fatal("Scan failed: ", err)
	}
	table.Render()
}

func scan(db *badger.DB, prefix string, each func(value []byte) error) error {
	return db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			err := it.Item().Value(func(v []byte) error {
				return each(v)
			})
			if err != nil {
				// Log and keep scanning instead of stopping the dump.
				fmt.Printf("Error reading key %s: %v\n", string(it.Item().Key()), err)
			}
		}
		return nil
	})
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
