// Command httpprobe sends one request to an httpd instance and prints the
// status line and headers. It exits 0 for a 2xx status and 1 otherwise.
//
//	httpprobe -addr 127.0.0.1:7878 -method HEAD /index.html
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/nczempin/httpd-go-uring/client"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fset := flag.NewFlagSet("httpprobe", flag.ContinueOnError)
	fset.SetOutput(stderr)

	addr := fset.String("addr", "127.0.0.1:7878", "server address, or socket path with -network unix")
	network := fset.String("network", "tcp", "tcp or unix")
	method := fset.String("method", "GET", "request method")
	timeout := fset.Duration("timeout", 5*time.Second, "exchange timeout")
	body := fset.Bool("body", false, "print the response body after the headers")

	if err := fset.Parse(args); err != nil {
		return 2
	}
	target := "/"
	switch fset.NArg() {
	case 0:
	case 1:
		target = fset.Arg(0)
	default:
		fmt.Fprintln(stderr, "httpprobe: at most one path")
		return 2
	}

	resp, err := client.NewHttpClient(*network, *addr, *timeout).Do(context.Background(), *method, target)
	if err != nil {
		fmt.Fprintf(stderr, "httpprobe: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "%d %s\n", resp.StatusCode, resp.StatusMessage)
	for _, h := range resp.Headers {
		fmt.Fprintf(stdout, "%s: %s\n", h.Key, h.Value)
	}
	if *body {
		fmt.Fprintln(stdout)
		stdout.Write(resp.Body)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 1
	}
	return 0
}
