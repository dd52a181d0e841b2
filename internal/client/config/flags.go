package config

import (
	"flag"
	"os"
	"time"

	"udpforum/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   address and port of the server UDP endpoint
//	-d string   download directory
//	-t int      ack timeout in milliseconds
//	-r int      max retransmissions per packet
//	-l float    outbound packet loss rate (testing only)
//
// Note: The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	// Filter args to include only those handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-t", "-r", "-l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerEndpointAddr, "a", cfg.ServerEndpointAddr, "address and port to access server")
	fs.StringVar(&cfg.DownloadDir, "d", cfg.DownloadDir, "download directory")
	ackTimeout := fs.Int("t", int(cfg.AckTimeout.Milliseconds()), "ack timeout (in milliseconds)")
	fs.IntVar(&cfg.MaxRetries, "r", cfg.MaxRetries, "max retransmissions")
	fs.Float64Var(&cfg.LossRate, "l", cfg.LossRate, "outbound packet loss rate")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.AckTimeout = time.Duration(*ackTimeout) * time.Millisecond
}
