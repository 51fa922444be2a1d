// Command seed creates a conversation in the badger store, standing in
// for the ticketing flow that normally opens one.
package main

import (
	"flag"
	"log"
	"os"
	"strings"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/joho/godotenv"

	"deskchat/domain"
	"deskchat/internal"
	"deskchat/repositories"
)

func main() {
	conversationID := flag.String("conversation", "", "Conversation id to create")
	ticketID := flag.String("ticket", "", "Ticket id the conversation belongs to")
	participants := flag.String("participants", "", "Comma separated participant user ids")
	flag.Parse()

	if *conversationID == "" || *participants == "" {
		flag.Usage()
		os.Exit(2)
	}

	_ = godotenv.Load()
	var cfg internal.Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		log.Fatal("Error while reading configuration: ", err)
	}

	db, err := badger.Open(badger.DefaultOptions(cfg.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	conversations := repositories.NewConversationRepository(db)
	conversation := domain.Conversation{
		ID:             domain.ConversationID(*conversationID),
		TicketID:       *ticketID,
		ParticipantIDs: strings.Split(*participants, ","),
	}
	if err := conversations.Create(conversation); err != nil {
		log.Fatal("Error while creating conversation: ", err)
	}

	color.Green.Printf("Created conversation %s with participants %v\n",
		conversation.ID, conversation.ParticipantIDs)
}
