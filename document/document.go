// Package document ties the object model, builder, serializer and encryption
// filter to a target file: a Session is opened against a path, filled through
// its Builder and written once on Close.
package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/edsrzf/mmap-go"

	"github.com/wudi/pdfcompose/builder"
	"github.com/wudi/pdfcompose/encryption"
	"github.com/wudi/pdfcompose/fonts"
	"github.com/wudi/pdfcompose/ir/semantic"
	"github.com/wudi/pdfcompose/layout"
	"github.com/wudi/pdfcompose/observability"
	"github.com/wudi/pdfcompose/security"
	"github.com/wudi/pdfcompose/writer"
)

// IOError reports a failure to open, write or close the target or source file.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string { return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err) }

func (e *IOError) Unwrap() error { return e.Err }

// Password configures the Standard security handler applied on Close.
type Password struct {
	User        string
	Owner       string
	Permissions security.Permission
}

type options struct {
	password    *Password
	fonts       fonts.Provider
	logger      observability.Logger
	compression int
	xmp         bool
	pageSize    semantic.Rectangle
	producer    string
	source      string
	sourcePwd   string
	rand        io.Reader
}

// Option configures Create.
type Option func(*options)

// WithPassword encrypts the output with AES-256. An empty owner password is
// replaced by a random one.
func WithPassword(user, owner string, perms security.Permission) Option {
	return func(o *options) { o.password = &Password{User: user, Owner: owner, Permissions: perms} }
}

func WithFontProvider(p fonts.Provider) Option { return func(o *options) { o.fonts = p } }

func WithLogger(l observability.Logger) Option { return func(o *options) { o.logger = l } }

// WithCompression sets the zlib level for content streams; 0 disables compression.
func WithCompression(level int) Option { return func(o *options) { o.compression = level } }

// WithoutXMP skips the XMP metadata stream.
func WithoutXMP() Option { return func(o *options) { o.xmp = false } }

func WithPageSize(r semantic.Rectangle) Option { return func(o *options) { o.pageSize = r } }

// WithProducer overrides writer.DefaultProducer when the document sets no producer.
func WithProducer(p string) Option { return func(o *options) { o.producer = p } }

// WithSource copies every page of an existing PDF into the new document
// before any other content. password opens an encrypted source.
func WithSource(path, password string) Option {
	return func(o *options) { o.source, o.sourcePwd = path, password }
}

// WithRand overrides the randomness used for encryption salts and IVs.
func WithRand(r io.Reader) Option { return func(o *options) { o.rand = r } }

// Session owns an open target file and the document being composed for it.
// It is not safe for concurrent use.
type Session struct {
	path   string
	file   *os.File
	doc    *semantic.Document
	b      *builder.Builder
	layout *layout.Engine
	opts   options
	logger observability.Logger

	source mmap.MMap
	done   bool

	// existed is set when the target was present before Create; touched once
	// Close has truncated it.
	existed bool
	touched bool
}

// Create opens path for writing and returns a session for a new document of
// the given version. A source set with WithSource is read before the target is
// opened, so the two may name the same file. The target keeps its previous
// content until Close writes the document.
func Create(path string, version semantic.Version, opts ...Option) (*Session, error) {
	o := options{
		compression: 6,
		xmp:         true,
		pageSize:    semantic.A4,
	}
	for _, opt := range opts {
		opt(&o)
	}
	log := observability.OrNop(o.logger).With(observability.String("path", path))

	doc := semantic.NewDocument(version)
	bopts := []builder.Option{builder.WithLogger(log), builder.WithPageSize(o.pageSize)}
	if o.fonts != nil {
		bopts = append(bopts, builder.WithFontProvider(o.fonts))
	}
	b := builder.New(doc, bopts...)
	s := &Session{
		path:   path,
		doc:    doc,
		b:      b,
		layout: layout.NewEngine(b, layout.WithLogger(log)),
		opts:   o,
		logger: log,
	}
	if o.source != "" {
		if err := s.importSource(context.Background(), o.source, o.sourcePwd); err != nil {
			doc.Poison()
			s.unmapSource()
			return nil, err
		}
	}

	_, statErr := os.Stat(path)
	s.existed = statErr == nil
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		doc.Poison()
		s.unmapSource()
		return nil, &IOError{Op: "create", Path: path, Err: err}
	}
	s.file = f
	log.Info(observability.EventDocumentCreated,
		observability.String("version", string(doc.Version)),
		observability.Bool("encrypted", o.password != nil))
	return s, nil
}

// Document returns the document being composed.
func (s *Session) Document() *semantic.Document { return s.doc }

// Builder returns the content builder bound to the document.
func (s *Session) Builder() *builder.Builder { return s.b }

// Layout returns a Markdown/HTML/LaTeX engine writing through Builder.
func (s *Session) Layout() *layout.Engine { return s.layout }

// Path is the target file.
func (s *Session) Path() string { return s.path }

// Close serializes the document, encrypts it when a password is configured
// and writes the result with a single write. A second call returns
// semantic.ErrAlreadyClosed. Any failure poisons the document and removes
// the partial target.
func (s *Session) Close() error {
	return s.CloseContext(context.Background())
}

// CloseContext is Close with a context for the serialization steps.
func (s *Session) CloseContext(ctx context.Context) error {
	if err := s.doc.Finalize(); err != nil {
		return err
	}
	err := s.flush(ctx)
	s.unmapSource()
	if err != nil {
		s.doc.Poison()
		s.discard()
		s.logger.Error("close failed", observability.Error("error", err))
		return err
	}
	s.done = true
	s.logger.Info(observability.EventDocumentClosed,
		observability.Int("pages", len(s.doc.Pages)))
	return nil
}

func (s *Session) flush(ctx context.Context) error {
	var buf bytes.Buffer
	w := writer.New(writer.WithLogger(s.logger))
	cfg := writer.Config{Compression: s.opts.compression, XMP: s.opts.xmp, Producer: s.opts.producer}
	if err := w.Write(ctx, s.doc, &buf, cfg); err != nil {
		return err
	}
	data := buf.Bytes()
	if pw := s.opts.password; pw != nil {
		enc, err := encryption.Apply(ctx, data, encryption.Options{
			UserPassword:  pw.User,
			OwnerPassword: pw.Owner,
			Permissions:   pw.Permissions,
			Rand:          s.opts.rand,
			Logger:        s.logger,
		})
		if err != nil {
			return err
		}
		data = enc
	}
	s.touched = true
	if err := s.file.Truncate(0); err != nil {
		return &IOError{Op: "truncate", Path: s.path, Err: err}
	}
	if _, err := s.file.WriteAt(data, 0); err != nil {
		return &IOError{Op: "write", Path: s.path, Err: err}
	}
	err := s.file.Close()
	s.file = nil
	if err != nil {
		return &IOError{Op: "close", Path: s.path, Err: err}
	}
	return nil
}

// Release frees the session's resources. After a successful Close it does
// nothing; otherwise the document is closed without writing and the target
// is removed unless it existed before Create and was never overwritten. It
// is safe to defer.
func (s *Session) Release() {
	if s == nil || s.done {
		return
	}
	if s.doc.State() == semantic.StateOpen {
		s.doc.Poison()
	}
	s.unmapSource()
	s.discard()
}

func (s *Session) discard() {
	if s.file != nil {
		s.file.Close()
		s.file = nil
	}
	if !s.done && (!s.existed || s.touched) {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("remove partial target", observability.Error("error", err))
		}
	}
}

// With creates a session, runs fn and closes it. The target file is released
// on every path and removed when fn or Close fails.
func With(path string, version semantic.Version, fn func(*Session) error, opts ...Option) error {
	s, err := Create(path, version, opts...)
	if err != nil {
		return err
	}
	defer s.Release()
	if err := fn(s); err != nil {
		return err
	}
	return s.Close()
}
