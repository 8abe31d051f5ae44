package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/eringen/campusadmin"
	"github.com/eringen/campusadmin/collections"
)

func newRootCmd() *cobra.Command {
	v := viper.New()
	var configFile string

	root := &cobra.Command{
		Use:           "campusadmin",
		Short:         "Content admin for a campus website",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(v, configFile)
		},
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (yaml, toml or json)")

	root.AddCommand(newServeCmd(v), newCollectionsCmd(), newVersionCmd())
	return root
}

// loadConfig reads .env when present, then the optional config file, then
// CAMPUS_* environment variables.
func loadConfig(v *viper.Viper, configFile string) error {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return fmt.Errorf("load .env: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat .env: %w", err)
	}

	setDefaults(v)
	v.SetEnvPrefix("CAMPUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", configFile, err)
		}
	}
	return nil
}

// setDefaults registers the keys the binary reads. Empty values fall through
// to the SiteConfig defaults.
func setDefaults(v *viper.Viper) {
	v.SetDefault("name", "")
	v.SetDefault("url", "")
	v.SetDefault("description", "")
	v.SetDefault("addr", "")
	v.SetDefault("database", "")
	v.SetDefault("upload_log.path", "")
	v.SetDefault("upload_log.retention_days", 0)
	v.SetDefault("admin_password", "")
	v.SetDefault("session_secret", "")
	v.SetDefault("cookie_secure", false)
	v.SetDefault("storage.backend", "")
	v.SetDefault("storage.local_dir", "")
	v.SetDefault("storage.base_url", "")
	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.access_key", "")
	v.SetDefault("s3.secret_key", "")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.public_base_url", "")
	v.SetDefault("s3.path_style", false)
	v.SetDefault("s3.part_size", 0)
	v.SetDefault("s3.presign_expiry", time.Duration(0))
	v.SetDefault("editor.max_upload_size", 0)
	v.SetDefault("editor.folder", "")
	v.SetDefault("editor.session_ttl", time.Duration(0))
	v.SetDefault("cache.size", 0)
	v.SetDefault("cache.ttl", time.Duration(0))
}

func siteConfig(v *viper.Viper) campusadmin.SiteConfig {
	cfg := campusadmin.SiteConfig{
		Name:                   v.GetString("name"),
		URL:                    v.GetString("url"),
		Description:            v.GetString("description"),
		Addr:                   v.GetString("addr"),
		DatabasePath:           v.GetString("database"),
		UploadLogPath:          v.GetString("upload_log.path"),
		UploadLogRetentionDays: v.GetInt("upload_log.retention_days"),
		AdminPassword:          v.GetString("admin_password"),
		SessionSecret:          v.GetString("session_secret"),
		CookieSecure:           v.GetBool("cookie_secure"),
		MaxUploadSize:          v.GetInt64("editor.max_upload_size"),
		EditorFolder:           v.GetString("editor.folder"),
		EditorSessionTTL:       v.GetDuration("editor.session_ttl"),
		CacheSize:              v.GetInt("cache.size"),
		CacheTTL:               v.GetDuration("cache.ttl"),
	}
	cfg.Storage = campusadmin.StorageConfig{
		Backend:  v.GetString("storage.backend"),
		LocalDir: v.GetString("storage.local_dir"),
		BaseURL:  v.GetString("storage.base_url"),
	}
	cfg.Storage.S3.Bucket = v.GetString("s3.bucket")
	cfg.Storage.S3.Region = v.GetString("s3.region")
	cfg.Storage.S3.AccessKey = v.GetString("s3.access_key")
	cfg.Storage.S3.SecretKey = v.GetString("s3.secret_key")
	cfg.Storage.S3.BaseEndpoint = v.GetString("s3.endpoint")
	cfg.Storage.S3.PublicBaseURL = v.GetString("s3.public_base_url")
	cfg.Storage.S3.UsePathStyle = v.GetBool("s3.path_style")
	cfg.Storage.S3.PartSize = v.GetInt64("s3.part_size")
	cfg.Storage.S3.PresignExpiry = v.GetDuration("s3.presign_expiry")
	return cfg
}

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, siteConfig(v))
		},
	}
	cmd.Flags().String("addr", "", "listen address (default :3000)")
	_ = v.BindPFlag("addr", cmd.Flags().Lookup("addr"))
	return cmd
}

func serve(ctx context.Context, cfg campusadmin.SiteConfig) error {
	app := campusadmin.New(cfg, campusadmin.ViewFuncs{})
	defer app.Close()

	errc := make(chan error, 1)
	go func() { errc <- app.Start(ctx) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	app.Echo.Logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return <-errc
}

func newCollectionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "collections",
		Short: "List the content collections and their fields",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printCollections(cmd.OutOrStdout())
		},
	}
}

func printCollections(out io.Writer) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, col := range collections.All() {
		fmt.Fprintf(w, "%s (%s)\n", col.Name, col.ID)
		for _, p := range col.Properties {
			var flags []string
			if p.Required {
				flags = append(flags, "required")
			}
			if p.RichText {
				flags = append(flags, "rich text")
			}
			if p.Storage != nil {
				flags = append(flags, "upload:"+p.Storage.Path)
			}
			if len(p.Enum) > 0 {
				flags = append(flags, strings.Join(p.EnumKeys(), "|"))
			}
			fmt.Fprintf(w, "  %s\t%s\t%s\n", p.Key, p.DataType, strings.Join(flags, ", "))
		}
	}
	return w.Flush()
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the campusadmin version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "campusadmin %s\n", version)
		},
	}
}
