// Command radclient sends a single Access-Request or Accounting-Request to
// a radiusd instance and prints the decoded reply. It is an operator
// smoke-testing tool, not a second protocol implementation: it reuses
// internal/raddict for wire encoding/decoding.
package main

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/lion7/radiusd/internal/raddict"
	"github.com/lion7/radiusd/internal/request"
)

func main() {
	var (
		addr    = flag.String("addr", "127.0.0.1:1812", "host:port of the radiusd listener")
		secret  = flag.String("secret", "", "shared RADIUS secret")
		acct    = flag.Bool("acct", false, "send an Accounting-Request (code 4) instead of an Access-Request (code 1)")
		user    = flag.String("user", "", "value for the User-Name attribute")
		timeout = flag.Duration("timeout", 3*time.Second, "reply wait timeout")
	)
	var attrFlags []string
	flag.StringArrayVar(&attrFlags, "attr", nil, "additional attribute as name=value, repeatable")
	flag.Parse()

	attrs := request.NewOrderedMap()
	if *user != "" {
		attrs.Set("User-Name", *user)
	}
	for _, kv := range attrFlags {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			fmt.Fprintf(os.Stderr, "invalid -attr %q, want name=value\n", kv)
			os.Exit(2)
		}
		attrs.Set(name, value)
	}

	code := uint8(1)
	if *acct {
		code = 4
	}

	if err := send(*addr, []byte(*secret), code, attrs, *timeout); err != nil {
		fmt.Fprintf(os.Stderr, "radclient: %v\n", err)
		os.Exit(1)
	}
}

func send(addr string, secret []byte, code uint8, attrs *request.OrderedMap, timeout time.Duration) error {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", addr, err)
	}
	defer conn.Close()

	payload, err := raddict.EncodeRequest(code, byte(os.Getpid()), attrs, secret)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("sending request: %w", err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return fmt.Errorf("setting read deadline: %w", err)
	}
	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	if err != nil {
		return fmt.Errorf("waiting for reply: %w", err)
	}

	decode := raddict.NewDecoder(secret)
	reply, err := decode(buf[:n])
	if err != nil {
		return fmt.Errorf("decoding reply: %w", err)
	}

	fmt.Printf("reply code=%d id=%d\n", reply.Code(), reply.ID())
	for _, name := range reply.Names() {
		for _, v := range reply.Values(name) {
			fmt.Printf("  %s = %s\n", name, v)
		}
	}
	return nil
}
