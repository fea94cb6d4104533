package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/offboardpro/offboardpro/api/client/upgrade"
	"github.com/offboardpro/offboardpro/api/models"
)

var (
	upgradeAPI   string
	upgradeToken string
	upgradeUser  string
	upgradeCycle string
)

var upgradeCmd = &cobra.Command{
	Use:   "upgrade",
	Short: "Buy Pro from the terminal against a running API",
	RunE: func(cmd *cobra.Command, args []string) error {
		tok := upgradeToken
		if tok == "" {
			tok = os.Getenv("OFFBOARDPRO_TOKEN")
		}
		uid := upgradeUser
		switch {
		case tok == "":
			uid = ""
		case uid == "":
			uid = tokenSubject(tok)
		}
		out := cmd.OutOrStdout()
		orders := upgrade.NewHTTPClient(upgradeAPI, func(context.Context) (string, error) { return tok, nil }, nil)
		checkout := newTerminalCheckout(cmd.InOrStdin(), out, isTerminal(cmd.InOrStdin()))
		o := upgrade.New(orders, checkout, newSignalGuard(out), printNavigator{out: out},
			upgrade.WithTransitionHook(func(from, to upgrade.State) {
				fmt.Fprintf(out, "[%s -> %s]\n", from, to)
			}))

		res, err := o.Upgrade(cmd.Context(), uid, models.BillingCycle(upgradeCycle))
		if errors.Is(err, upgrade.ErrAbandoned) {
			fmt.Fprintln(out, "Checkout closed; nothing was charged.")
			return nil
		}
		if err != nil {
			if ue := o.Err(); ue != nil {
				fmt.Fprintln(out, ue.Message)
			}
			return err
		}
		if res.State == upgrade.Done {
			fmt.Fprintf(out, "Pro (%s) active since %s\n", res.Confirmed.BillingCycle, res.Confirmed.UpgradedAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

func init() {
	upgradeCmd.Flags().StringVar(&upgradeAPI, "api", "http://localhost:8080", "API base URL")
	upgradeCmd.Flags().StringVar(&upgradeToken, "token", "", "bearer token (default $OFFBOARDPRO_TOKEN)")
	upgradeCmd.Flags().StringVar(&upgradeUser, "user", "", "user id the token belongs to (default: the token subject)")
	upgradeCmd.Flags().StringVar(&upgradeCycle, "cycle", string(models.CycleMonthly), "billing cycle: monthly or yearly")
}

// tokenSubject reads the uid a bearer token claims without verifying it; the
// server does that. Opaque tokens fall back to a placeholder so a signed-in
// session is never sent to the login page.
func tokenSubject(tok string) string {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok, claims); err == nil {
		if sub, _ := claims["sub"].(string); sub != "" {
			return sub
		}
	}
	return "token-holder"
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// terminalCheckout stands in for the hosted checkout: the operator pastes the
// payment id and signature the gateway returned. An empty payment id closes
// the checkout.
type terminalCheckout struct {
	in     *bufio.Reader
	out    io.Writer
	prompt bool
}

func newTerminalCheckout(in io.Reader, out io.Writer, prompt bool) *terminalCheckout {
	return &terminalCheckout{in: bufio.NewReader(in), out: out, prompt: prompt}
}

func (c *terminalCheckout) Open(ctx context.Context, o upgrade.Order) (upgrade.Payment, error) {
	fmt.Fprintf(c.out, "Order %s: %s (%s)\n", o.ID, models.FormatMinor(o.Amount), o.Gateway)
	type answer struct {
		p   upgrade.Payment
		err error
	}
	done := make(chan answer, 1)
	go func() {
		id, err := c.ask("Payment id (empty to cancel): ")
		if id == "" {
			done <- answer{err: upgrade.ErrAbandoned}
			return
		}
		if err != nil && !errors.Is(err, io.EOF) {
			done <- answer{err: err}
			return
		}
		sig, err := c.ask("Signature: ")
		if err != nil && !errors.Is(err, io.EOF) {
			done <- answer{err: err}
			return
		}
		done <- answer{p: upgrade.Payment{OrderID: o.ID, PaymentID: id, Signature: sig}}
	}()
	select {
	case a := <-done:
		return a.p, a.err
	case <-ctx.Done():
		return upgrade.Payment{}, ctx.Err()
	}
}

func (c *terminalCheckout) ask(prompt string) (string, error) {
	if c.prompt {
		fmt.Fprint(c.out, prompt)
	}
	line, err := c.in.ReadString('\n')
	return strings.TrimSpace(line), err
}

// signalGuard swallows SIGINT and SIGTERM while installed.
type signalGuard struct {
	out  io.Writer
	mu   sync.Mutex
	sigs chan os.Signal
	stop chan struct{}
}

func newSignalGuard(out io.Writer) *signalGuard { return &signalGuard{out: out} }

func (g *signalGuard) Install() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sigs != nil {
		return
	}
	g.sigs = make(chan os.Signal, 1)
	g.stop = make(chan struct{})
	signal.Notify(g.sigs, syscall.SIGINT, syscall.SIGTERM)
	go func(sigs <-chan os.Signal, stop <-chan struct{}) {
		for {
			select {
			case <-sigs:
				fmt.Fprintln(g.out, "Updating your plan, please wait...")
			case <-stop:
				return
			}
		}
	}(g.sigs, g.stop)
}

func (g *signalGuard) Remove() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sigs == nil {
		return
	}
	signal.Stop(g.sigs)
	close(g.stop)
	g.sigs, g.stop = nil, nil
}

type printNavigator struct{ out io.Writer }

func (n printNavigator) Navigate(path string) { fmt.Fprintf(n.out, "-> %s\n", path) }
