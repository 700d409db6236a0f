package attest

import (
	"context"
	"time"
)

// timing defines when deferred operations should be executed
type timing int

const (
	TimingImmediate timing = iota
	TimingEventually
	TimingConsistently
)

// Promise represents a deferred operation
type Promise[P any, A any] interface {
	// Eventually configures the promise to retry the operation until success or timeout
	Eventually() P
	// Within sets a custom timeout for Eventually operations
	Within(time.Duration) P
	// Consistently configures the promise to verify the operation succeeds for the entire duration
	Consistently() P
	// For sets a custom timeout for Consistently operations
	For(time.Duration) P
	// T creates an assertion to validate the operation's result
	T() A
}

var _ Promise[*CLIPromise, *CLIAssert] = (*CLIPromise)(nil)

// PromiseBase provides common promise functionality
type PromiseBase struct {
	timing  timing
	timeout time.Duration
	ctx     context.Context
	config  *Config
}

func (b *PromiseBase) setEventually() {
	b.timing = TimingEventually
	b.timeout = b.config.DefaultRetryTimeout
}

func (b *PromiseBase) setWithin(timeout time.Duration) {
	if b.timing != TimingEventually {
		panic("Within() can only be called after Eventually()")
	}

	b.timeout = timeout
}

func (b *PromiseBase) setConsistently() {
	b.timing = TimingConsistently
	b.timeout = b.config.DefaultRetryTimeout
}

func (b *PromiseBase) setFor(timeout time.Duration) {
	if b.timing != TimingConsistently {
		panic("For() can only be called after Consistently()")
	}

	b.timeout = timeout
}

// CLIPromise represents a deferred CLI command execution
type CLIPromise struct {
	PromiseBase

	command string
	args    []string
}

func (p *CLIPromise) Eventually() *CLIPromise {
	p.setEventually()
	return p
}

func (p *CLIPromise) Within(timeout time.Duration) *CLIPromise {
	p.setWithin(timeout)
	return p
}

func (p *CLIPromise) Consistently() *CLIPromise {
	p.setConsistently()
	return p
}

func (p *CLIPromise) For(timeout time.Duration) *CLIPromise {
	p.setFor(timeout)
	return p
}

func (p *CLIPromise) T() *CLIAssert {
	return &CLIAssert{
		AssertBase: AssertBase{config: p.config},
		promise:    p,
	}
}
