package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/orchid-dev/orchid/pkg/skill"
)

var skillsCmd = &cobra.Command{
	Use:   "skills",
	Short: "Manage skills",
}

var skillsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List loaded skills",
	Long:  `List every skill in the skills directory with its dispatch mode and allowed capabilities.`,
	RunE:  runSkillsList,
}

var skillsWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the skills directory and revalidate on change",
	Long: `Watch the skills directory for edits to SKILL.md files and reload the
registry each time the directory settles. Useful while authoring skills:
a broken skill is reported immediately instead of at the next run.`,
	RunE: runSkillsWatch,
}

func init() {
	skillsCmd.AddCommand(skillsListCmd)
	skillsCmd.AddCommand(skillsWatchCmd)
	rootCmd.AddCommand(skillsCmd)
}

func runSkillsList(cmd *cobra.Command, args []string) error {
	boot, err := loadBootstrap()
	if err != nil {
		return err
	}
	defer boot.close()

	directory := boot.registry.Directory()
	if len(directory) == 0 {
		fmt.Printf("No skills found in %s\n", boot.cfg.SkillsDir)
		return nil
	}

	fmt.Printf("Skills (%d):\n", len(directory))
	for _, entry := range directory {
		fmt.Printf("  %-24s %-9s %s\n", entry.Name, entry.Dispatch, entry.Description)
	}
	return nil
}

func runSkillsWatch(cmd *cobra.Command, args []string) error {
	boot, err := loadBootstrap()
	if err != nil {
		return err
	}
	defer boot.close()

	zlog := boot.log.GetZerolog()
	skillsDir := boot.cfg.SkillsDir

	revalidate := func() {
		registry, err := skill.LoadAll(skillsDir, boot.gateway, zlog)
		if err != nil {
			fmt.Printf("INVALID: %v\n", err)
			return
		}
		fmt.Printf("OK: %d skills valid\n", registry.Count())
	}

	watcher, err := skill.NewWatcher(zlog, revalidate)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Stop()

	if err := watcher.Watch(skillsDir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", skillsDir, err)
	}

	fmt.Printf("Watching %s (%d skills loaded), Ctrl-C to stop\n", skillsDir, boot.registry.Count())
	<-cmd.Context().Done()
	return nil
}
