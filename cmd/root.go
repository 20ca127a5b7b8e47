package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/surge-downloader/localcopy/internal/config"
	"github.com/surge-downloader/localcopy/internal/core"
	"github.com/surge-downloader/localcopy/internal/utils"
)

// Version information - set via ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:           "localcopy",
	Short:         "Keep resumable local copies of remote files",
	Long:          `localcopy downloads remote resources once, resumes interrupted transfers and serves later requests from local storage.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// session is an opened service together with the instance lock guarding it.
type session struct {
	settings *config.Settings
	service  *core.LocalService
	lock     *instanceLock
}

// openSession prepares directories, logging and settings, takes the
// instance lock and opens the download service.
func openSession() (*session, error) {
	if err := config.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	settings, err := config.LoadSettings()
	if err != nil {
		return nil, err
	}
	utils.ConfigureDebug(config.GetLogsDir(), settings.General.LogRetentionCount)

	lock, err := acquireLock(config.GetStateDir())
	if err != nil {
		utils.CloseDebug()
		return nil, err
	}

	storageDir, err := utils.EnsureAbsPath(settings.General.StorageDir)
	if err != nil {
		lock.release()
		utils.CloseDebug()
		return nil, fmt.Errorf("invalid storage dir %q: %w", settings.General.StorageDir, err)
	}

	service, err := core.NewLocalService(core.Options{
		Backend:    settings.State.Backend,
		StateDir:   config.GetStateDir(),
		StorageDir: storageDir,
		Runtime:    settings.ToRuntimeConfig(),
	})
	if err != nil {
		lock.release()
		utils.CloseDebug()
		return nil, err
	}

	utils.Debug("Session opened (backend %s, storage %s)", settings.State.Backend, storageDir)
	return &session{settings: settings, service: service, lock: lock}, nil
}

// Close interrupts running transfers and releases the lock.
func (s *session) Close() error {
	err := s.service.Close()
	s.lock.release()
	utils.Debug("Session closed")
	utils.CloseDebug()
	return err
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.SetVersionTemplate("localcopy version {{.Version}} (built " + BuildTime + ")\n")
}
