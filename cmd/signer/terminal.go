package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/better-wallet/better-signer/internal/keyexec"
	"github.com/better-wallet/better-signer/pkg/types"
)

// console serializes prompts on a shared terminal
type console struct {
	mu  sync.Mutex
	in  *bufio.Reader
	out io.Writer
}

func newConsole(in io.Reader, out io.Writer) *console {
	return &console{in: bufio.NewReader(in), out: out}
}

func (c *console) prompt(ctx context.Context, question string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprint(c.out, question)
	line, err := c.in.ReadString('\n')
	if err != nil && !(err == io.EOF && line != "") {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

// accessGate asks for explicit confirmation before a device seed is read
type accessGate struct {
	console *console
}

func (g *accessGate) Authenticate(ctx context.Context, reason string) error {
	answer, err := g.console.prompt(ctx, fmt.Sprintf("%s. Continue? [y/N] ", reason))
	if err != nil {
		return err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return nil
	default:
		return keyexec.ErrGateDeclined
	}
}

// seedPrompter collects an off-device seed phrase on the terminal. An empty
// line cancels.
type seedPrompter struct {
	console  *console
	executor *keyexec.OffDeviceExecutor
}

func (p *seedPrompter) RequestSeedPhrase(ctx context.Context, fs types.FactorSource) {
	go p.collect(ctx, fs)
}

func (p *seedPrompter) collect(ctx context.Context, fs types.FactorSource) {
	label := fs.Hint.Label
	if label == "" {
		label = fs.ID.String()
	}
	for {
		words, err := p.console.prompt(ctx, fmt.Sprintf("Enter the %d words of %q (empty to cancel): ", fs.Hint.WordCount, label))
		if err != nil || words == "" {
			p.executor.OnSeedPhraseCancelled(fs.ID)
			return
		}
		passphrase, err := p.console.prompt(ctx, "Passphrase (empty for none): ")
		if err != nil {
			p.executor.OnSeedPhraseCancelled(fs.ID)
			return
		}

		validity := p.executor.OnSeedPhraseConfirmed(fs.ID, strings.Fields(words), passphrase)
		if validity == keyexec.SeedPhraseValid {
			return
		}
		p.console.printf("%v, try again\n", validity.Err())
	}
}
