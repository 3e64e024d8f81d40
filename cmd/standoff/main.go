// Command standoff is the CLI for the stand-off annotation store.
// It tokenizes text, imports XML markup, queries and replays bundles, and
// inspects the durable change log.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alecthomas/kong"

	"github.com/FocuswithJustin/standoff/core/bundle"
	"github.com/FocuswithJustin/standoff/core/changelog"
	"github.com/FocuswithJustin/standoff/core/errors"
	"github.com/FocuswithJustin/standoff/core/logstore"
	"github.com/FocuswithJustin/standoff/core/pipeline"
	"github.com/FocuswithJustin/standoff/core/query"
	"github.com/FocuswithJustin/standoff/core/sqlite"
	"github.com/FocuswithJustin/standoff/core/standoff"
	"github.com/FocuswithJustin/standoff/core/xmlimport"
	"github.com/FocuswithJustin/standoff/internal/logging"
	"github.com/FocuswithJustin/standoff/internal/validation"
)

const version = "0.1.0"

// bundleExt is appended to the base name of bundles written by tokenize.
const bundleExt = ".standoff"

// stdout receives command output; tests replace it.
var stdout io.Writer = os.Stdout

// Globals holds flags shared by every command. Each can also be set from
// the environment or from the JSON file named by --config.
type Globals struct {
	LogLevel  string          `name:"log-level" help:"Log level (debug, info, warn, error)" default:"info" env:"STANDOFF_LOG_LEVEL"`
	LogFormat string          `name:"log-format" help:"Log format (text, json)" default:"text" env:"STANDOFF_LOG_FORMAT"`
	Config    kong.ConfigFlag `help:"Load flags from a JSON configuration file"`
	Workers   int             `help:"Documents processed in parallel (0 = one per CPU)" default:"0" env:"STANDOFF_WORKERS"`
	Store     string          `help:"SQLite DSN of the durable change log" env:"STANDOFF_STORE"`
}

// CLI defines the command-line interface for standoff.
type CLI struct {
	Globals

	Tokenize  TokenizeCmd  `cmd:"" help:"Tokenize text files"`
	ImportXML ImportXMLCmd `cmd:"" name:"import-xml" help:"Convert inline XML markup to a stand-off bundle"`
	Query     QueryCmd     `cmd:"" help:"Run a query expression against a bundle"`
	Replay    ReplayCmd    `cmd:"" help:"Replay a bundle and summarize the result"`
	History   HistoryCmd   `cmd:"" help:"Inspect the durable change log"`
	Offsets   OffsetsCmd   `cmd:"" help:"Convert between code point and UTF-16 offsets"`
	Version   VersionCmd   `cmd:"" help:"Print version information"`
}

func parse(args []string) (*CLI, *kong.Context, error) {
	var cli CLI
	parser, err := kong.New(&cli,
		kong.Name("standoff"),
		kong.Description("Stand-off text annotation store"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Configuration(kong.JSON),
	)
	if err != nil {
		return nil, nil, err
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		return nil, nil, err
	}
	return &cli, kctx, nil
}

func run(ctx context.Context, args []string) error {
	cli, kctx, err := parse(args)
	if err != nil {
		return err
	}
	level, err := logging.ParseLevel(cli.LogLevel)
	if err != nil {
		return err
	}
	format, err := logging.ParseFormat(cli.LogFormat)
	if err != nil {
		return err
	}
	logging.InitLogger(level, format)

	kctx.BindTo(ctx, (*context.Context)(nil))
	return kctx.Run(&cli.Globals)
}

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "standoff: %v\n", err)
		os.Exit(1)
	}
}

// TokenizeCmd adds Token and SpaceToken annotations to text files.
type TokenizeCmd struct {
	Files       []string `arg:"" help:"UTF-8 text files" type:"existingfile"`
	Set         string   `help:"Annotation set receiving the tokens (default set when empty)"`
	SkipSpace   bool     `name:"skip-space" help:"Do not add SpaceToken annotations"`
	OutDir      string   `name:"out-dir" help:"Write one bundle per file into this directory" type:"path"`
	Compression string   `help:"Bundle compression" default:"xz" enum:"xz,gzip"`
}

func (c *TokenizeCmd) Run(g *Globals, ctx context.Context) error {
	var db *sql.DB
	if g.Store != "" {
		var err error
		if db, err = openStore(ctx, g.Store); err != nil {
			return err
		}
		defer db.Close()
	}

	docs := make([]*standoff.Document, len(c.Files))
	recorders := make([]*bundle.Recorder, len(c.Files))
	for i, path := range c.Files {
		doc, err := loadText(path)
		if err != nil {
			return err
		}
		if db != nil {
			stream := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) + ":" + doc.ID().String()
			store, err := logstore.New(ctx, db, stream)
			if err != nil {
				return err
			}
			doc.SetChangeLog(store)
			logging.StoreOpened(sqlite.DriverName(), stream, int(store.LastSeq()))
		}
		recorders[i] = bundle.Record(doc)
		docs[i] = doc
	}

	tokenizer := &pipeline.Tokenizer{SetName: c.Set, SkipSpace: c.SkipSpace}
	if err := pipeline.New(tokenizer).RunAll(ctx, docs, g.Workers); err != nil {
		return err
	}

	for i, doc := range docs {
		set := doc.Set(c.Set)
		fmt.Fprintf(stdout, "%s\t%d tokens\t%d space tokens\n", c.Files[i],
			set.WithType(pipeline.TokenType).Len(), set.WithType(pipeline.SpaceTokenType).Len())
		if c.OutDir == "" {
			continue
		}
		base, err := validation.SanitizeFilename(strings.TrimSuffix(filepath.Base(c.Files[i]), filepath.Ext(c.Files[i])))
		if err != nil {
			return errors.Wrapf(err, "bundle name for %s", c.Files[i])
		}
		out := filepath.Join(c.OutDir, base+bundleExt)
		if err := bundle.WriteFile(out, recorders[i].Bundle(), bundle.CompressionType(c.Compression)); err != nil {
			return err
		}
	}
	return nil
}

// ImportXMLCmd converts inline XML to a bundle.
type ImportXMLCmd struct {
	File        string `arg:"" help:"XML file" type:"existingfile"`
	Root        string `help:"XPath selecting the element to import (default: document element)"`
	Set         string `help:"Annotation set receiving the elements" default:"Original markups"`
	SkipRoot    bool   `name:"skip-root" help:"Do not annotate the selected element itself"`
	Out         string `required:"" help:"Bundle to write" type:"path"`
	Compression string `help:"Bundle compression" default:"xz" enum:"xz,gzip"`
}

func (c *ImportXMLCmd) Run() error {
	if err := validation.ValidatePath(c.Out); err != nil {
		return errors.Wrap(err, "output path")
	}
	data, err := validation.ReadFile(c.File)
	if err != nil {
		return err
	}
	doc, err := xmlimport.Import(data, xmlimport.Options{Root: c.Root, SetName: c.Set, SkipRoot: c.SkipRoot})
	if err != nil {
		return errors.Wrapf(err, "importing %s", c.File)
	}
	logging.DocumentLoaded(c.File, doc.ID().String(), doc.Len())

	if err := bundle.WriteFile(c.Out, bundle.FromDocument(doc, nil), bundle.CompressionType(c.Compression)); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s\t%d elements\t%d code points\n", c.File, doc.Set(c.Set).Size(), doc.Len())
	return nil
}

// QueryCmd prints the annotations matched by an expression.
type QueryCmd struct {
	Bundle string `arg:"" help:"Bundle file" type:"existingfile"`
	Expr   string `arg:"" help:"Query expression, e.g. 'words.Token | within 0..100'"`
	JSON   bool   `help:"Print one JSON object per annotation"`
}

// match is the JSON form of a query result.
type match struct {
	ID       int            `json:"id"`
	Type     string         `json:"type"`
	Start    int            `json:"start"`
	End      int            `json:"end"`
	Text     string         `json:"text"`
	Features map[string]any `json:"features,omitempty"`
}

func (c *QueryCmd) Run(ctx context.Context) error {
	q, err := query.Parse(c.Expr)
	if err != nil {
		return err
	}
	doc, err := replayBundle(ctx, c.Bundle)
	if err != nil {
		return err
	}
	view, err := q.Run(doc)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(stdout)
	for ann := range view.All() {
		text := doc.SpanText(ann)
		if !c.JSON {
			fmt.Fprintf(stdout, "%d\t%s\t%d\t%d\t%s\n", ann.ID(), ann.Type(), ann.Start(), ann.End(), text)
			continue
		}
		m := match{ID: ann.ID(), Type: ann.Type(), Start: ann.Start(), End: ann.End(), Text: text}
		if ann.Features().Len() > 0 {
			m.Features = ann.Features().ToPlainMap(false, false)
		}
		if err := enc.Encode(m); err != nil {
			return errors.Wrap(err, "writing result")
		}
	}
	return nil
}

// ReplayCmd rebuilds the final document of a bundle.
type ReplayCmd struct {
	Bundle  string `arg:"" help:"Bundle file" type:"existingfile"`
	Records string `help:"Also write the change records as JSON Lines to this file" type:"path"`
}

func (c *ReplayCmd) Run(ctx context.Context) error {
	b, err := bundle.ReadFile(c.Bundle)
	if err != nil {
		return err
	}
	doc, err := replay(ctx, b)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "document\t%s\t%d code points\t%d records\n", doc.ID(), doc.Len(), len(b.Records))
	for _, name := range doc.SetNames() {
		set := doc.Set(name)
		fmt.Fprintf(stdout, "set\t%q\t%d annotations\tnext id %d\t%s\n",
			name, set.Size(), set.NextID(), strings.Join(set.Types(), ","))
	}

	if c.Records == "" {
		return nil
	}
	f, err := os.Create(c.Records)
	if err != nil {
		return errors.Wrapf(err, "creating %s", c.Records)
	}
	if err := changelog.Encode(f, b.Records); err != nil {
		f.Close()
		return err
	}
	return errors.Wrapf(f.Close(), "closing %s", c.Records)
}

// HistoryCmd lists change log streams, or prints the records of one.
type HistoryCmd struct {
	Stream string `arg:"" optional:"" help:"Stream to print (lists streams when omitted)"`
	Since  int64  `help:"Only print records after this sequence number"`
}

func (c *HistoryCmd) Run(g *Globals, ctx context.Context) error {
	if g.Store == "" {
		return errors.WithHint(errors.Wrap(errors.ErrInvalidInput, "no change log store"),
			"pass --store or set STANDOFF_STORE")
	}
	db, err := openStore(ctx, g.Store)
	if err != nil {
		return err
	}
	defer db.Close()

	if c.Stream == "" {
		streams, err := logstore.Streams(ctx, db)
		if err != nil {
			return err
		}
		for _, name := range streams {
			store, err := logstore.New(ctx, db, name)
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "%s\t%d records\n", name, store.LastSeq())
		}
		return nil
	}

	store, err := logstore.New(ctx, db, c.Stream)
	if err != nil {
		return err
	}
	entries, err := store.Since(ctx, c.Since)
	if err != nil {
		return err
	}
	if len(entries) == 0 && store.LastSeq() == 0 {
		return errors.Wrapf(errors.ErrInvalidInput, "unknown stream %q", c.Stream)
	}
	records := make([]changelog.Record, len(entries))
	for i, e := range entries {
		records[i] = e.Record
	}
	return changelog.Encode(stdout, records)
}

// OffsetsCmd reports text lengths and converts offsets between code points
// and UTF-16 code units.
type OffsetsCmd struct {
	File         string `arg:"" help:"UTF-8 text file" type:"existingfile"`
	ToUTF16      []int  `name:"to-utf16" help:"Code point offsets to convert" sep:","`
	ToCodePoints []int  `name:"to-code-points" help:"UTF-16 offsets to convert" sep:","`
}

func (c *OffsetsCmd) Run() error {
	doc, err := loadText(c.File)
	if err != nil {
		return err
	}
	m := doc.Mapper()
	fmt.Fprintf(stdout, "code points\t%d\nutf-16 units\t%d\n", m.Len(), m.AltLen())

	for _, o := range c.ToUTF16 {
		if o < 0 || o > m.Len() {
			return errors.Wrapf(errors.ErrInvalidOffset, "code point offset %d outside [0,%d]", o, m.Len())
		}
		fmt.Fprintf(stdout, "cp %d\tutf16 %d\n", o, m.ToAlt(o))
	}
	for _, o := range c.ToCodePoints {
		if o < 0 || o > m.AltLen() {
			return errors.Wrapf(errors.ErrInvalidOffset, "UTF-16 offset %d outside [0,%d]", o, m.AltLen())
		}
		fmt.Fprintf(stdout, "utf16 %d\tcp %d\n", o, m.ToNative(o))
	}
	return nil
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	info := sqlite.GetInfo()
	fmt.Fprintf(stdout, "standoff version %s\n", version)
	fmt.Fprintf(stdout, "sqlite driver %s (%s, %s)\n", info.DriverName, info.DriverType, info.Package)
	return nil
}

// Helper functions

func loadText(path string) (*standoff.Document, error) {
	text, err := validation.ReadText(path)
	if err != nil {
		return nil, err
	}
	doc := standoff.New(text)
	logging.DocumentLoaded(path, doc.ID().String(), doc.Len())
	return doc, nil
}

func openStore(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sqlite.Open(dsn)
	if err != nil {
		return nil, err
	}
	if err := sqlite.Configure(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func replayBundle(ctx context.Context, path string) (*standoff.Document, error) {
	b, err := bundle.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return replay(ctx, b)
}

// replay rebuilds b, logging each applied record at debug level.
func replay(ctx context.Context, b *bundle.Bundle) (*standoff.Document, error) {
	start := time.Now()
	doc, err := b.Baseline()
	if err == nil {
		doc.SetChangeLog(changelog.SinkFunc(func(rec changelog.Record) error {
			logging.ChangeApplied(string(rec.Command), rec.Set, rec.ID)
			return nil
		}))
		err = standoff.Apply(b.Records, doc)
		doc.SetChangeLog(nil)
	}
	logging.ReplayFinished(ctx, len(b.Records), time.Since(start), err, "bundle", b.ID)
	if err != nil {
		return nil, err
	}
	return doc, nil
}
