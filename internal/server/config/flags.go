package config

import (
	"flag"
	"os"
	"time"

	"udpforum/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   UDP bind address (e.g., "127.0.0.1:8866")
//	-u string   upload directory
//	-f string   credentials file path
//	-s string   transfer ticket HMAC secret key
//	-v int      transfer ticket validity, seconds
//	-t int      ack timeout, milliseconds
//	-r int      max retransmissions per packet
//	-i int      client inactivity timeout, seconds
//	-l float    outbound packet loss rate (testing only)
//
// Notes:
//   - The function first filters os.Args to only the flags it recognizes using
//     flagx.FilterArgs, avoiding collisions with other components.
//   - Duration flags are accepted as integers and then converted to
//     time.Duration values.
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-u", "-f", "-s", "-v", "-t", "-r", "-i", "-l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddr, "a", config.EndpointAddr, "address and port to run server")
	fs.StringVar(&config.UploadDir, "u", config.UploadDir, "upload directory")
	fs.StringVar(&config.CredentialsFile, "f", config.CredentialsFile, "credentials file")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	ticketValidity := fs.Int("v", int(config.TicketValidityDuration.Seconds()), "ticket_validity (in seconds)")
	ackTimeout := fs.Int("t", int(config.AckTimeout.Milliseconds()), "ack_timeout (in milliseconds)")
	inactivityTimeout := fs.Int("i", int(config.InactivityTimeout.Seconds()), "inactivity_timeout (in seconds)")

	fs.IntVar(&config.MaxRetries, "r", config.MaxRetries, "max retransmissions")
	fs.Float64Var(&config.LossRate, "l", config.LossRate, "outbound packet loss rate")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.TicketValidityDuration = time.Duration(*ticketValidity) * time.Second
	config.AckTimeout = time.Duration(*ackTimeout) * time.Millisecond
	config.InactivityTimeout = time.Duration(*inactivityTimeout) * time.Second
}
