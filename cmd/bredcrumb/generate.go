package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-kit/log/level"
	"github.com/spf13/afero"
	"gitlab.com/stephen-fox/bredcrumb/snippet"
	"gitlab.com/stephen-fox/bredcrumb/storage"
	"gitlab.com/stephen-fox/bredcrumb/token"
	"gitlab.com/stephen-fox/bredcrumb/yara"
)

func (o *app) generate(cfg *flags) error {
	value := cfg.generate.custom

	if value == "" {
		generator := &token.Generator{
			Prefix:  o.config.Generate.Prefix,
			OptRand: o.optRand,
		}

		if cfg.generate.prefix != "" {
			generator.Prefix = cfg.generate.prefix
		}

		length := o.config.Generate.Length
		if cfg.generate.length < 0 {
			return fmt.Errorf("length must be greater than zero (got %d)", cfg.generate.length)
		} else if cfg.generate.length > 0 {
			length = cfg.generate.length
		}

		var err error
		if cfg.generate.hex {
			value, err = generator.GenerateHex(length)
		} else {
			value, err = generator.Generate(length)
		}
		if err != nil {
			return err
		}

		level.Debug(o.logger).Log("msg", "generated tracking string", "length", length, "prefix", generator.Prefix)
	} else {
		level.Debug(o.logger).Log("msg", "using custom tracking string")
	}

	_, err := o.store.FindByValue(value)
	switch {
	case err == nil:
		return fmt.Errorf("%q is already tracked", value)
	case !errors.Is(err, storage.ErrNotFound):
		return err
	}

	tracked := storage.NewTrackedString(value, cfg.generate.name, cfg.generate.tags, o.now())

	err = o.store.Add(tracked)
	if err != nil {
		return fmt.Errorf("failed to store tracking string - %w", err)
	}

	level.Debug(o.logger).Log("msg", "stored tracking string", "id", tracked.ID, "database", o.store.Path)

	fmt.Fprintln(o.stdout, value)

	return nil
}

func (o *app) yaraRule(cfg *flags) error {
	options := yara.Options{
		ASCII:    cfg.yara.ascii,
		Wide:     cfg.yara.wide,
		NoCase:   cfg.yara.nocase,
		FullWord: cfg.yara.fullword,
		Author:   o.config.Yara.Author,
		OptDate:  o.now().UTC(),
	}

	if cfg.yara.author != "" {
		options.Author = cfg.yara.author
	}

	var rule string
	if cfg.yara.hexOnly {
		rule = yara.GenerateHexOnly(cfg.yara.value, cfg.yara.name, options)
	} else {
		rule = yara.Generate(cfg.yara.value, cfg.yara.name, options)
	}

	return o.writeOutput(cfg.yara.output, rule)
}

func (o *app) code(cfg *flags) error {
	lang, err := snippet.ParseLanguage(cfg.code.language)
	if err != nil {
		return err
	}

	src, err := snippet.Generate(lang, cfg.code.value)
	if err != nil {
		return err
	}

	level.Debug(o.logger).Log("msg", "generated code snippet", "language", lang)

	return o.writeOutput(cfg.code.output, src)
}

// writeOutput writes content to path, or to stdout if path is empty.
func (o *app) writeOutput(path string, content string) error {
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}

	if path == "" {
		_, err := fmt.Fprint(o.stdout, content)
		return err
	}

	err := afero.WriteFile(o.fs, path, []byte(content), 0o644)
	if err != nil {
		return fmt.Errorf("failed to write %q - %w", path, err)
	}

	level.Info(o.logger).Log("msg", "wrote file", "path", path)

	return nil
}
