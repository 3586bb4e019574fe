// Command coordinator is a runnable demonstration of the Request
// Classifier wired end to end against the Tool Surface: it opens a
// coordinator session plus one session per table specialist, classifies
// an incoming human request into (class, waitMs, specialistId), creates
// a thread addressed to the classified specialist, posts
// the request, then calls waitForMentions as the specialist (bounded by
// the classified waitMs) and prints the delivery it receives. No Agent
// Brain runs in this process. This exists because the Classifier is
// otherwise only reachable from inside a live agent process.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/kandev/coordhub/internal/common/logger"
	"github.com/kandev/coordhub/pkg/runtime"
	"github.com/kandev/coordhub/pkg/runtime/classifier"
)

func main() {
	hubURL := os.Getenv("HUB_URL")
	if hubURL == "" {
		hubURL = "http://localhost:8080"
	}

	log := logger.Default()
	client := runtime.NewClient(hubURL)
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	const coordinatorID = "coordinator"

	if _, err := client.OpenSession(ctx, coordinatorID, "demo coordinator", nil); err != nil {
		log.Fatal(err.Error())
	}

	// Register one session per specialist the classification table can
	// route to, so whichever class the demo body lands in has a live
	// agent registered to receive the mention.
	table := classifier.DefaultTable()
	for _, rule := range table {
		if _, err := client.OpenSession(ctx, rule.SpecialistID, "demo "+string(rule.Class)+" specialist", []string{string(rule.Class)}); err != nil {
			log.Fatal(err.Error())
		}
	}

	body := "please compose a track about cake"
	rule := classifier.Route(body, table)
	specialist := rule.SpecialistID
	if specialist == "" {
		// The general class has no fixed specialist and is resolved by
		// capability best-guess; the demo falls back to the first
		// registered specialist since this run has no richer capability
		// directory to search.
		specialist = table[0].SpecialistID
	}
	fmt.Printf("classified request as %q -> specialist %q, waitMs %d\n", rule.Class, specialist, rule.WaitMs)

	threadID, err := client.CreateThread(ctx, coordinatorID, "demo-request", []string{specialist})
	if err != nil {
		log.Fatal(err.Error())
	}
	fmt.Printf("created thread %s\n", threadID)

	if _, err := client.SendMessage(ctx, threadID, coordinatorID, body, []string{specialist}); err != nil {
		log.Fatal(err.Error())
	}

	deliveries, err := client.Wait(ctx, specialist, rule.WaitMs)
	if err != nil {
		log.Fatal(err.Error())
	}
	for _, d := range deliveries {
		fmt.Printf("%s received: %q (from %s)\n", specialist, d.Body, d.SenderID)
	}

	_ = client.CloseSession(ctx, coordinatorID)
	for _, rule := range table {
		_ = client.CloseSession(ctx, rule.SpecialistID)
	}
}
