// Command surge-echo connects to a realtime endpoint using
// environment-configured credentials, sends one message, and prints
// whatever frames arrive on the incoming bus. It exists to exercise the
// Client end-to-end from the command line; it is not part of the library
// contract.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/surgemsg/surge-go"
)

var (
	flagEnvFile     = flag.String("env-file", ".env", "dotenv file to load SURGE_* variables from")
	flagChannel     = flag.String("channel", "demo", "channel to publish the echo message on")
	flagPayload     = flag.String("payload", "hello from surge-echo", "payload to send")
	flagConnTimeout = flag.Duration("connect-timeout", 15*time.Second, "how long to wait for Connected")
)

func main() {
	flag.Parse()

	if err := godotenv.Load(*flagEnvFile); err != nil {
		log.Printf("no dotenv file loaded (%v), falling back to process environment", err)
	}

	opts := &surge.ClientOptions{
		Key:         os.Getenv("SURGE_KEY"),
		Token:       os.Getenv("SURGE_TOKEN"),
		ClientID:    os.Getenv("SURGE_CLIENT_ID"),
		Environment: os.Getenv("SURGE_ENVIRONMENT"),
		LogLevel:    envOr("SURGE_LOG_LEVEL", "info"),
	}

	client, err := surge.NewClient(opts)
	if err != nil {
		log.Fatalf("building client: %v", err)
	}

	client.Subscribe(func(msg *surge.ProtocolMessage) {
		fmt.Printf("[%s] channel=%s payload=%s\n", msg.Action, msg.Channel, msg.Payload)
	})

	ctx, cancel := context.WithTimeout(context.Background(), *flagConnTimeout)
	defer cancel()

	event := <-client.Connect(ctx)
	log.Printf("state after connect: %s", event.Current)

	result := <-client.Send(&surge.ProtocolMessage{
		Action:  surge.ActionMessage,
		Channel: *flagChannel,
		Payload: []byte(*flagPayload),
	})
	if result != nil {
		log.Printf("send did not ack: %v", result)
	}

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer closeCancel()
	if err := client.Close(closeCtx); err != nil {
		log.Printf("close: %v", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
