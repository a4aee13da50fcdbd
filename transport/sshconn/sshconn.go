// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package sshconn implements transport.Session over SSH using
// golang.org/x/crypto/ssh. One dialed client carries all command channels;
// each OpenChannel maps to one ssh session on the multiplexed connection.
package sshconn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/matt-FFFFFF/conch/transport"
	"golang.org/x/crypto/ssh"
)

var (
	// ErrDial is returned when the SSH connection cannot be established.
	ErrDial = errors.New("failed to dial ssh host")
	// ErrOpenChannel is returned when a command channel cannot be opened.
	ErrOpenChannel = errors.New("failed to open ssh channel")
)

const defaultPort = "22"

// Config describes how to reach and authenticate with a remote host.
type Config struct {
	// Host is the host name or address, optionally with a port.
	Host string
	// User is the login name.
	User string
	// Auth holds the authentication methods to offer.
	Auth []ssh.AuthMethod
	// HostKeyCallback verifies the server's host key. There is no default:
	// picking a verification strategy is the caller's responsibility.
	HostKeyCallback ssh.HostKeyCallback
	// Timeout bounds the TCP connection attempt. Zero means no timeout
	// beyond the context's.
	Timeout time.Duration
}

// Dial establishes an authenticated SSH connection and returns it as a
// transport.Session.
func Dial(ctx context.Context, cfg Config) (transport.Session, error) {
	addr := cfg.Host
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, defaultPort)
	}

	dialer := net.Dialer{Timeout: cfg.Timeout}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Join(ErrDial, err)
	}

	clientCfg := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            cfg.Auth,
		HostKeyCallback: cfg.HostKeyCallback,
		Timeout:         cfg.Timeout,
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, clientCfg)
	if err != nil {
		_ = conn.Close() // Best effort.

		return nil, errors.Join(ErrDial, err)
	}

	return &session{client: ssh.NewClient(sshConn, chans, reqs)}, nil
}

type session struct {
	client *ssh.Client
}

var _ transport.Session = (*session)(nil)

func (s *session) OpenChannel(ctx context.Context, cmdline string) (transport.Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Join(ErrOpenChannel, err)
	}

	sess, err := s.client.NewSession()
	if err != nil {
		return nil, errors.Join(ErrOpenChannel, err)
	}

	stdin, err := sess.StdinPipe()
	if err != nil {
		_ = sess.Close()

		return nil, errors.Join(ErrOpenChannel, err)
	}

	stdout, err := sess.StdoutPipe()
	if err != nil {
		_ = sess.Close()

		return nil, errors.Join(ErrOpenChannel, err)
	}

	stderr, err := sess.StderrPipe()
	if err != nil {
		_ = sess.Close()

		return nil, errors.Join(ErrOpenChannel, err)
	}

	if err := sess.Start(cmdline); err != nil {
		_ = sess.Close()

		return nil, errors.Join(ErrOpenChannel, err)
	}

	return &channel{
		sess:   sess,
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
	}, nil
}

func (s *session) Close() error {
	return s.client.Close()
}

type channel struct {
	sess      *ssh.Session
	stdin     io.WriteCloser
	stdout    io.Reader
	stderr    io.Reader
	closeOnce sync.Once
	closeErr  error
}

var _ transport.Channel = (*channel)(nil)

func (c *channel) Stdin() io.WriteCloser { return c.stdin }
func (c *channel) Stdout() io.Reader     { return c.stdout }
func (c *channel) Stderr() io.Reader     { return c.stderr }

// Wait blocks until the remote command exits. Non-zero remote exit statuses
// are reported through the returned code, not the error.
func (c *channel) Wait() (int, error) {
	err := c.sess.Wait()
	if err == nil {
		return 0, nil
	}

	if ee := new(ssh.ExitError); errors.As(err, &ee) {
		return ee.ExitStatus(), nil
	}

	if em := new(ssh.ExitMissingError); errors.As(err, &em) {
		// The remote side exited without reporting a status, typically
		// because the channel was torn down by a signal.
		return -1, nil
	}

	return -1, err
}

func (c *channel) Signal(sig string) error {
	if err := c.sess.Signal(ssh.Signal(sig)); err != nil {
		return fmt.Errorf("failed to signal remote process: %w", err)
	}

	return nil
}

func (c *channel) Close() error {
	c.closeOnce.Do(func() {
		err := c.sess.Close()
		if err != nil && !errors.Is(err, io.EOF) {
			c.closeErr = err
		}
	})

	return c.closeErr
}
