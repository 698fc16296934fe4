// Command devtoken prints a bearer token for a faculty id, for local use
// against the api.
package main

import (
	"flag"
	"fmt"
	"os"

	"facultyportal/internal/auth"
	"facultyportal/internal/config"
)

func main() {
	name := flag.String("name", "", "display name carried in the token")
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: devtoken [-name NAME] FACULTY_ID")
		os.Exit(2)
	}

	cfg := config.Load()
	if cfg.Production() {
		fmt.Fprintln(os.Stderr, "devtoken refuses to run with APP_ENV=production")
		os.Exit(1)
	}
	tok, err := auth.Issue(flag.Arg(0), *name, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "issue token:", err)
		os.Exit(1)
	}
	fmt.Println(tok.AccessToken)
}
