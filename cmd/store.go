package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/kilianp07/dspfactory/app"
	"github.com/kilianp07/dspfactory/connectors/remote"
	"github.com/kilianp07/dspfactory/core/catalog"
	"github.com/kilianp07/dspfactory/core/factory"
	"github.com/kilianp07/dspfactory/core/metrics"
	"github.com/kilianp07/dspfactory/core/repository"
	"github.com/kilianp07/dspfactory/infra/logger"
	"github.com/kilianp07/dspfactory/pkg/export"
)

// factoryStore is the part of the repository the store commands need. It
// is served by the local repository or by a remote API.
type factoryStore interface {
	Put(ctx context.Context, r io.Reader, opts factory.WriteOptions) (catalog.Entry, error)
	Artifact(ctx context.Context, sha string, opts factory.WriteOptions) ([]byte, error)
	List(ctx context.Context, q catalog.Query) ([]catalog.Entry, error)
	Delete(ctx context.Context, sha string) (bool, error)
	Close() error
}

type localStore struct{ repo *repository.Repository }

func (l localStore) Put(ctx context.Context, r io.Reader, opts factory.WriteOptions) (catalog.Entry, error) {
	return l.repo.Import(ctx, r, opts)
}

func (l localStore) Artifact(ctx context.Context, sha string, opts factory.WriteOptions) ([]byte, error) {
	f, err := l.repo.Load(ctx, sha)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := f.Write(&buf, opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (l localStore) List(ctx context.Context, q catalog.Query) ([]catalog.Entry, error) {
	return l.repo.List(ctx, q)
}

func (l localStore) Delete(ctx context.Context, sha string) (bool, error) {
	return l.repo.Delete(ctx, sha)
}

func (l localStore) Close() error { return l.repo.Close() }

type remoteStore struct{ *remote.Client }

func (r remoteStore) Put(ctx context.Context, in io.Reader, opts factory.WriteOptions) (catalog.Entry, error) {
	return r.Push(ctx, in, opts)
}

func (remoteStore) Close() error { return nil }

var (
	storeRemote bool
	storeWrite  writeFlags
	storeQuery  catalog.Query
	storeFormat string
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Manage stored factories",
}

var storePutCmd = &cobra.Command{
	Use:   "put [file]",
	Short: "Store an artifact",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStorePut,
}

var storeGetCmd = &cobra.Command{
	Use:   "get <sha>",
	Short: "Write a stored factory",
	Args:  cobra.ExactArgs(1),
	RunE:  runStoreGet,
}

var storeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored factories, newest first",
	Args:  cobra.NoArgs,
	RunE:  runStoreList,
}

var storeDeleteCmd = &cobra.Command{
	Use:   "delete <sha>",
	Short: "Delete a stored factory",
	Args:  cobra.ExactArgs(1),
	RunE:  runStoreDelete,
}

func init() {
	storeCmd.PersistentFlags().BoolVar(&storeRemote, "remote", false, "use the API configured under remote instead of the local repository")
	storeWrite.bind(storeGetCmd)
	storePutCmd.Flags().BoolVar(&storeWrite.binary, "binary", false, "store the binary encoding")
	storePutCmd.Flags().BoolVar(&storeWrite.small, "small", false, "store the small variant")
	storeListCmd.Flags().StringVar(&storeQuery.Name, "name", "", "only factories with this name")
	storeListCmd.Flags().IntVar(&storeQuery.Limit, "limit", 0, "maximum entries, 0 for all")
	storeListCmd.Flags().StringVar(&storeFormat, "format", "json", "output format: json or csv")
	storeCmd.AddCommand(storePutCmd, storeGetCmd, storeListCmd, storeDeleteCmd)
	rootCmd.AddCommand(storeCmd)
}

func openStore(cmd *cobra.Command) (factoryStore, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if storeRemote {
		if cfg.Remote.URL == "" {
			return nil, fmt.Errorf("remote.url is not configured")
		}
		c, err := remote.FromConf(cfg.Remote, logger.New("remote"))
		if err != nil {
			return nil, err
		}
		return remoteStore{c}, nil
	}
	if err := logger.Configure(cfg.Logging.Options()); err != nil {
		return nil, err
	}
	repo, err := app.NewRepository(commandContext(cmd), cfg, metrics.NopSink{})
	if err != nil {
		return nil, err
	}
	return localStore{repo}, nil
}

func runStorePut(cmd *cobra.Command, args []string) error {
	st, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()
	in := cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		file, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer file.Close()
		in = file
	}
	entry, err := st.Put(commandContext(cmd), in, storeWrite.options())
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), entry.SHAKey)
	return nil
}

func runStoreGet(cmd *cobra.Command, args []string) error {
	st, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()
	data, err := st.Artifact(commandContext(cmd), args[0], storeWrite.options())
	if err != nil {
		return err
	}
	return writeTo(cmd, storeWrite.out, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

func runStoreList(cmd *cobra.Command, _ []string) error {
	st, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()
	entries, err := st.List(commandContext(cmd), storeQuery)
	if err != nil {
		return err
	}
	switch storeFormat {
	case "json":
		return export.WriteJSON(cmd.OutOrStdout(), entries)
	case "csv":
		return export.WriteCSV(cmd.OutOrStdout(), entries)
	default:
		return fmt.Errorf("unknown format %q", storeFormat)
	}
}

func runStoreDelete(cmd *cobra.Command, args []string) error {
	st, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()
	ok, err := st.Delete(commandContext(cmd), args[0])
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: %w", args[0], repository.ErrNotFound)
	}
	return nil
}
