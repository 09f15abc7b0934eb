package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spigell/resume-screener/internal/extract"
	"github.com/spigell/resume-screener/internal/screening"
	"github.com/spigell/resume-screener/internal/secrets"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Manage jobs",
}

var jobAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a job to screen resumes against",
	Run: func(cmd *cobra.Command, _ []string) {
		addJob(cmd)
	},
}

var jobListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs",
	Run: func(cmd *cobra.Command, _ []string) {
		listJobs(cmd)
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Manage resumes",
}

var resumeAddCmd = &cobra.Command{
	Use:   "add FILE",
	Short: "Extract and store a PDF or DOCX resume",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		addResume(cmd, args[0])
	},
}

var resumeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List resumes",
	Run: func(cmd *cobra.Command, _ []string) {
		listResumes(cmd)
	},
}

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Manage provider keys in the OS keyring",
}

var secretSetCmd = &cobra.Command{
	Use:       "set ACCOUNT",
	Short:     "Store an api key (gemini or openai) in the OS keyring",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"gemini", "openai"},
	Run: func(_ *cobra.Command, args []string) {
		setSecret(args[0])
	},
}

func init() {
	rootCmd.AddCommand(jobCmd, resumeCmd, secretCmd)
	jobCmd.AddCommand(jobAddCmd, jobListCmd)
	resumeCmd.AddCommand(resumeAddCmd, resumeListCmd)
	secretCmd.AddCommand(secretSetCmd)

	addUserFlag(jobAddCmd)
	jobAddCmd.Flags().String("title", "", "job title")
	jobAddCmd.Flags().String("company", "", "company name")
	jobAddCmd.Flags().String("location", "", "job location")
	jobAddCmd.Flags().String("description", "", "job description")
	jobAddCmd.Flags().String("description-file", "", "read the job description from a file")
	jobAddCmd.Flags().StringSlice("skill", nil, "must-have skill, repeat or separate with commas")
	jobAddCmd.MarkFlagRequired("title")

	addUserFlag(jobListCmd)
	addUserFlag(resumeAddCmd)
	addUserFlag(resumeListCmd)
}

func addJob(cmd *cobra.Command) {
	ctx := context.Background()

	rt, err := newRuntime(ctx, false)
	if err != nil {
		newLogger().Fatal("preparing the service", zap.Error(err))
	}
	defer rt.Close()

	p, err := cliPrincipal(cmd)
	if err != nil {
		rt.logger.Fatal("resolving the user", zap.Error(err))
	}

	description, _ := cmd.Flags().GetString("description")
	if file, _ := cmd.Flags().GetString("description-file"); file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			rt.logger.Fatal("reading description file", zap.Error(err))
		}
		description = string(data)
	}

	in := screening.JobInput{Description: description}
	in.Title, _ = cmd.Flags().GetString("title")
	in.Company, _ = cmd.Flags().GetString("company")
	in.Location, _ = cmd.Flags().GetString("location")
	in.MustHaveSkills, _ = cmd.Flags().GetStringSlice("skill")

	job, err := rt.service.CreateJob(ctx, p, in)
	if err != nil {
		rt.logger.Fatal("creating job", zap.Error(err))
	}

	printJSON(rt.logger, job)
}

func listJobs(cmd *cobra.Command) {
	ctx := context.Background()

	rt, err := newRuntime(ctx, false)
	if err != nil {
		newLogger().Fatal("preparing the service", zap.Error(err))
	}
	defer rt.Close()

	p, err := cliPrincipal(cmd)
	if err != nil {
		rt.logger.Fatal("resolving the user", zap.Error(err))
	}

	jobs, err := rt.service.ListJobs(ctx, p)
	if err != nil {
		rt.logger.Fatal("listing jobs", zap.Error(err))
	}
	printJSON(rt.logger, jobs)
}

func addResume(cmd *cobra.Command, path string) {
	ctx := context.Background()

	rt, err := newRuntime(ctx, false)
	if err != nil {
		newLogger().Fatal("preparing the service", zap.Error(err))
	}
	defer rt.Close()

	p, err := cliPrincipal(cmd)
	if err != nil {
		rt.logger.Fatal("resolving the user", zap.Error(err))
	}

	mimeType := extract.MimeTypeFor(path)
	if mimeType == "" {
		rt.logger.Fatal("unsupported file", zap.String("filename", path), zap.Error(extract.ErrUnsupportedType))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		rt.logger.Fatal("reading resume", zap.Error(err))
	}
	if len(data) > extract.MaxUploadSize {
		rt.logger.Fatal("resume is too large", zap.Int("size", len(data)), zap.Int("max", extract.MaxUploadSize))
	}

	text, err := extract.New(rt.logger.Named("extract")).Text(data, mimeType)
	if err != nil {
		rt.logger.Fatal("extracting resume text", zap.Error(err))
	}

	resume, err := rt.service.CreateResume(ctx, p, screening.ResumeInput{
		Filename: filepath.Base(path),
		MimeType: mimeType,
		Size:     int64(len(data)),
		Text:     text,
	})
	if err != nil {
		rt.logger.Fatal("storing resume", zap.Error(err))
	}

	rt.logger.Info("resume stored",
		zap.String("resume_id", resume.ID),
		zap.String("filename", resume.Filename),
		zap.Int("characters", len([]rune(resume.Text))),
	)
	fmt.Println(resume.ID)
}

func listResumes(cmd *cobra.Command) {
	ctx := context.Background()

	rt, err := newRuntime(ctx, false)
	if err != nil {
		newLogger().Fatal("preparing the service", zap.Error(err))
	}
	defer rt.Close()

	p, err := cliPrincipal(cmd)
	if err != nil {
		rt.logger.Fatal("resolving the user", zap.Error(err))
	}

	resumes, err := rt.service.ListResumes(ctx, p)
	if err != nil {
		rt.logger.Fatal("listing resumes", zap.Error(err))
	}
	printJSON(rt.logger, resumes)
}

func setSecret(account string) {
	logger := newLogger()

	account = strings.ToLower(strings.TrimSpace(account))
	if account != "gemini" && account != "openai" {
		logger.Fatal("unknown account", zap.String("account", account), zap.Strings("valid", []string{"gemini", "openai"}))
	}

	keyPrompt := promptui.Prompt{
		Label: fmt.Sprintf("%s api key", account),
		Mask:  '*',
		Validate: func(s string) error {
			if strings.TrimSpace(s) == "" {
				return fmt.Errorf("key must not be empty")
			}
			return nil
		},
	}

	value, err := keyPrompt.Run()
	if err != nil {
		logger.Fatal("reading key", zap.Error(err))
	}

	if err := secrets.Store(account, value); err != nil {
		logger.Fatal("storing key", zap.Error(err))
	}

	logger.Info("key stored in the OS keyring", zap.String("service", secrets.KeyringService), zap.String("account", account))
}
