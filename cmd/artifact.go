package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kilianp07/dspfactory/app/plugins"
	"github.com/kilianp07/dspfactory/core/backend/archive"
	"github.com/kilianp07/dspfactory/core/backend/source"
	"github.com/kilianp07/dspfactory/core/factory"
)

type writeFlags struct {
	binary bool
	small  bool
	out    string
}

func (w *writeFlags) bind(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&w.binary, "binary", false, "write the binary encoding")
	cmd.Flags().BoolVar(&w.small, "small", false, "write the small variant")
	cmd.Flags().StringVarP(&w.out, "out", "o", "-", "output file, - for stdout")
}

func (w writeFlags) options() factory.WriteOptions {
	return factory.WriteOptions{Binary: w.binary, Small: w.small}
}

var (
	packFlags struct {
		writeFlags
		name    string
		sha     string
		dsp     string
		code    string
		libs    []string
		compile []string
		meta    []string
	}
	convertFlags writeFlags
	emitFlags    struct {
		lang string
		out  string
	}
	inspectJSON bool
)

var packCmd = &cobra.Command{
	Use:   "pack",
	Short: "Build an archive factory from an expanded program and its generated code",
	Args:  cobra.NoArgs,
	RunE:  runPack,
}

var inspectCmd = &cobra.Command{
	Use:   "inspect [file]",
	Short: "Print the identity and metadata of an artifact",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runInspect,
}

var convertCmd = &cobra.Command{
	Use:   "convert [file]",
	Short: "Re-encode an artifact",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runConvert,
}

var emitCmd = &cobra.Command{
	Use:   "emit [file]",
	Short: "Write the generated code of an artifact as target-language source",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runEmit,
}

func init() {
	packFlags.bind(packCmd)
	packCmd.Flags().StringVar(&packFlags.name, "name", "", "factory name")
	packCmd.Flags().StringVar(&packFlags.sha, "sha", "", "sha key, computed from the program and libraries when empty")
	packCmd.Flags().StringVar(&packFlags.dsp, "dsp", "", "expanded program file")
	packCmd.Flags().StringVar(&packFlags.code, "code", "", "generated code file")
	packCmd.Flags().StringArrayVar(&packFlags.libs, "lib", nil, "library dependency, in load order")
	packCmd.Flags().StringArrayVar(&packFlags.compile, "option", nil, "compile option")
	packCmd.Flags().StringArrayVar(&packFlags.meta, "meta", nil, "extra metadata as key=value")
	_ = packCmd.MarkFlagRequired("name")
	_ = packCmd.MarkFlagRequired("dsp")
	_ = packCmd.MarkFlagRequired("code")

	inspectCmd.Flags().BoolVar(&inspectJSON, "json", false, "print JSON")

	convertFlags.bind(convertCmd)

	emitCmd.Flags().StringVar(&emitFlags.lang, "lang", string(source.LangC), "target language ("+strings.Join(source.Langs(), ", ")+")")
	emitCmd.Flags().StringVarP(&emitFlags.out, "out", "o", "-", "output file, - for stdout")

	rootCmd.AddCommand(packCmd, inspectCmd, convertCmd, emitCmd)
}

func runPack(cmd *cobra.Command, _ []string) error {
	dsp, err := os.ReadFile(packFlags.dsp)
	if err != nil {
		return fmt.Errorf("read program: %w", err)
	}
	code, err := os.ReadFile(packFlags.code)
	if err != nil {
		return fmt.Errorf("read code: %w", err)
	}
	opts := []archive.Option{archive.WithCompileOptions(packFlags.compile...)}
	for _, kv := range packFlags.meta {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return fmt.Errorf("invalid --meta %q, want key=value", kv)
		}
		opts = append(opts, archive.WithMeta(k, v))
	}
	sha := packFlags.sha
	if sha == "" {
		sha = factory.ComputeSHAKey(string(dsp), packFlags.compile...)
	}
	f := archive.New(factory.Identity{
		Name:      packFlags.name,
		SHAKey:    sha,
		DSPCode:   string(dsp),
		Libraries: packFlags.libs,
	}, string(code), opts...)
	return writeTo(cmd, packFlags.out, func(w io.Writer) error { return f.Write(w, packFlags.options()) })
}

func runInspect(cmd *cobra.Command, args []string) error {
	f, backend, err := readArtifact(cmd, args)
	if err != nil {
		return err
	}
	id := factory.IdentityOf(f)
	var meta [][2]string
	f.Metadata(factory.MetaFunc(func(k, v string) { meta = append(meta, [2]string{k, v}) }))

	out := cmd.OutOrStdout()
	if inspectJSON {
		type pair struct {
			Key   string `json:"key"`
			Value string `json:"value"`
		}
		doc := struct {
			factory.Identity
			Backend  string `json:"backend"`
			Metadata []pair `json:"metadata"`
		}{Identity: id, Backend: backend, Metadata: []pair{}}
		for _, m := range meta {
			doc.Metadata = append(doc.Metadata, pair{m[0], m[1]})
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	}
	fmt.Fprintf(out, "backend:   %s\n", backend)
	fmt.Fprintf(out, "name:      %s\n", id.Name)
	fmt.Fprintf(out, "sha_key:   %s\n", id.SHAKey)
	fmt.Fprintf(out, "libraries: %s\n", strings.Join(id.Libraries, ";"))
	fmt.Fprintln(out, "metadata:")
	for _, m := range meta {
		fmt.Fprintf(out, "  %s = %s\n", m[0], m[1])
	}
	return nil
}

func runConvert(cmd *cobra.Command, args []string) error {
	f, _, err := readArtifact(cmd, args)
	if err != nil {
		return err
	}
	return writeTo(cmd, convertFlags.out, func(w io.Writer) error { return f.Write(w, convertFlags.options()) })
}

func runEmit(cmd *cobra.Command, args []string) error {
	f, _, err := readArtifact(cmd, args)
	if err != nil {
		return err
	}
	coded, ok := f.(interface{ Code() string })
	if !ok {
		return fmt.Errorf("%s factory carries no generated code", f.Name())
	}
	text := source.Generate(factory.IdentityOf(f), source.Lang(emitFlags.lang), coded.Code())
	return writeTo(cmd, emitFlags.out, func(w io.Writer) error { return text.Write(w, factory.WriteOptions{}) })
}

// readArtifact reads args[0], or stdin, through the configured readers.
func readArtifact(cmd *cobra.Command, args []string) (factory.Factory, string, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, "", err
	}
	readers, err := plugins.NewReaders(cfg.Readers)
	if err != nil {
		return nil, "", err
	}
	in := cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		file, err := os.Open(args[0])
		if err != nil {
			return nil, "", err
		}
		defer file.Close()
		in = file
	}
	f, backend, err := readers.Read(in)
	if err != nil {
		return nil, "", err
	}
	if f == nil {
		return nil, "", fmt.Errorf("artifact not recognised by any reader (%s)", strings.Join(readers.Names(), ", "))
	}
	return f, backend, nil
}

func writeTo(cmd *cobra.Command, path string, fn func(io.Writer) error) error {
	if path == "" || path == "-" {
		return fn(cmd.OutOrStdout())
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(file); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}
