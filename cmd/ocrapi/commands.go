package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/hazyhaar/ocrapi/docpipe"
	"github.com/hazyhaar/ocrapi/kit"
	"github.com/hazyhaar/ocrapi/ocr"
	"github.com/hazyhaar/ocrapi/shield"
)

func extractCommand() *cli.Command {
	return &cli.Command{
		Name:      "extract",
		Usage:     "extract text from local files",
		ArgsUsage: "FILE...",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "print one JSON result per file"},
			&cli.StringFlag{Name: "lang", Usage: "languages for this run, e.g. kor+eng"},
		},
		Action: extractAction,
	}
}

// extractAction runs the pipeline on each file in turn. Text goes to
// stdout, errors to stderr; the exit status is 1 if any file failed.
func extractAction(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.Exit("extract: at least one FILE is required", 2)
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	_, _, pipe, err := components(cfg, nil, logger)
	if err != nil {
		return err
	}

	var opts []docpipe.Option
	if v := c.String("lang"); v != "" {
		langs, err := ocr.ParseLanguages(v)
		if err != nil {
			return cli.Exit(fmt.Sprintf("--lang: %v", err), 2)
		}
		opts = append(opts, docpipe.WithLanguages(langs))
	}

	ctx := kit.WithTransport(c.Context, "cli")
	enc := json.NewEncoder(os.Stdout)
	failed := 0
	for _, path := range c.Args().Slice() {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			failed++
			continue
		}
		res, err := pipe.Extract(ctx, docpipe.Upload{Filename: filepath.Base(path), Data: data}, opts...)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %s: %v\n", path, docpipe.KindOf(err), err)
			failed++
			if errors.Is(err, docpipe.ErrCanceled) {
				break
			}
			continue
		}
		if n := res.Failed(); n > 0 {
			fmt.Fprintf(os.Stderr, "%s: %d of %d pages failed\n", path, n, len(res.Pages))
		}
		if c.Bool("json") {
			if err := enc.Encode(res); err != nil {
				return err
			}
			continue
		}
		if c.NArg() > 1 {
			fmt.Printf("==> %s <==\n", path)
		}
		fmt.Println(res.Text)
	}
	if failed > 0 {
		return cli.Exit("", 1)
	}
	return nil
}

func langsCommand() *cli.Command {
	return &cli.Command{
		Name:  "langs",
		Usage: "list the default and installed OCR languages",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			_, _, pipe, err := components(cfg, nil, newLogger(cfg))
			if err != nil {
				return err
			}
			info, err := pipe.Languages(c.Context)
			if err != nil {
				return err
			}
			fmt.Println("default:  ", info.Default)
			fmt.Println("installed:", strings.Join(info.Installed, " "))
			return nil
		},
	}
}

func hashKeyCommand() *cli.Command {
	return &cli.Command{
		Name:      "hash-key",
		Usage:     "print the bcrypt hash of an API key for security.api_key_hash",
		ArgsUsage: "[KEY]",
		Action: func(c *cli.Context) error {
			key := c.Args().First()
			if key == "" {
				line, err := bufio.NewReader(os.Stdin).ReadString('\n')
				if err != nil && line == "" {
					return cli.Exit("hash-key: no key given on the command line or stdin", 2)
				}
				key = strings.TrimSpace(line)
			}
			if key == "" {
				return cli.Exit("hash-key: empty key", 2)
			}
			hash, err := shield.HashAPIKey(key)
			if err != nil {
				return err
			}
			fmt.Println(hash)
			return nil
		},
	}
}
