package server

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/optimode/emailhealth"
	"github.com/optimode/emailhealth/internal/csvinput"
	"github.com/optimode/emailhealth/internal/report"
)

var validate = validator.New()

type createRunRequest struct {
	Emails  []string `json:"emails" validate:"required,min=1,dive,required"`
	Workers int      `json:"workers" validate:"omitempty,min=1,max=50"`
}

type createRunResponse struct {
	ID     string               `json:"id"`
	Total  int                  `json:"total"`
	Source *csvinput.Extraction `json:"source,omitempty"`
}

// runView is the JSON rendering of a Run.
type runView struct {
	ID       string                         `json:"id"`
	State    State                          `json:"state"`
	Created  time.Time                      `json:"created"`
	Finished *time.Time                     `json:"finished,omitempty"`
	Progress emailhealth.Progress           `json:"progress"`
	Source   *csvinput.Extraction           `json:"source,omitempty"`
	Summary  *emailhealth.BatchSummary      `json:"summary,omitempty"`
	Category report.Category                `json:"category,omitempty"`
	Error    string                         `json:"error,omitempty"`
	Results  []emailhealth.ValidationResult `json:"results,omitempty"`
}

func (s *Server) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "running",
		"version": s.version,
	})
}

// createRun accepts a multipart CSV upload or a JSON list of addresses.
func (s *Server) createRun(c *fiber.Ctx) error {
	var (
		addresses []string
		src       *csvinput.Extraction
		workers   int
	)

	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		ext, err := s.readUpload(c)
		if err != nil {
			return err
		}
		if v := c.FormValue("workers"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || n > emailhealth.MaxWorkers {
				return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("workers must be between 1 and %d", emailhealth.MaxWorkers))
			}
			workers = n
		}
		addresses, src = ext.Addresses, ext
	} else {
		var req createRunRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		for i := range req.Emails {
			req.Emails[i] = strings.TrimSpace(req.Emails[i])
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		addresses, workers = req.Emails, req.Workers
	}

	run := s.start(addresses, src, workers)
	return c.Status(fiber.StatusAccepted).JSON(createRunResponse{
		ID:     run.ID,
		Total:  run.Total,
		Source: src,
	})
}

func (s *Server) readUpload(c *fiber.Ctx) (*csvinput.Extraction, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "missing file field")
	}

	opts := csvinput.Options{Column: s.input.Column, Dedupe: s.input.Dedupe}
	if col := strings.TrimSpace(c.FormValue("column")); col != "" {
		opts.Column = col
	}
	if v := c.FormValue("dedupe"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fiber.NewError(fiber.StatusBadRequest, "dedupe must be true or false")
		}
		opts.Dedupe = b
	}

	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	ext, err := csvinput.Extract(f, opts)
	switch {
	case errors.Is(err, emailhealth.ErrNoAddresses):
		return nil, fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	case err != nil:
		return nil, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return ext, nil
}

func (s *Server) lookup(c *fiber.Ctx) (*Run, error) {
	run, ok := s.runs.Get(c.Params("id"))
	if !ok {
		return nil, fiber.NewError(fiber.StatusNotFound, "run not found")
	}
	return run, nil
}

// getRun returns the state of a run. ?results=false omits the per-address
// results of a finished run.
func (s *Server) getRun(c *fiber.Ctx) error {
	run, err := s.lookup(c)
	if err != nil {
		return err
	}

	state, br, runErr := run.State()
	view := runView{
		ID:       run.ID,
		State:    state,
		Created:  run.Created,
		Progress: run.Progress(),
		Source:   run.Source,
	}
	if f := run.Finished(); !f.IsZero() {
		view.Finished = &f
	}
	if runErr != nil {
		view.Error = runErr.Error()
	}
	if br != nil {
		view.Summary = &br.Summary
		view.Category = report.Categorize(br.Summary.HealthRatio)
		if c.QueryBool("results", true) {
			view.Results = br.Results
		}
	}
	return c.JSON(view)
}

// finishedReport returns the batch report of a run that has stopped.
func (s *Server) finishedReport(c *fiber.Ctx) (*Run, *emailhealth.BatchReport, error) {
	run, err := s.lookup(c)
	if err != nil {
		return nil, nil, err
	}
	state, br, runErr := run.State()
	switch {
	case state == StateRunning:
		return nil, nil, fiber.NewError(fiber.StatusConflict, "run is still in progress")
	case runErr != nil:
		return nil, nil, fiber.NewError(fiber.StatusConflict, "run failed: "+runErr.Error())
	}
	return run, br, nil
}

func (s *Server) getReport(c *fiber.Ctx) error {
	_, br, err := s.finishedReport(c)
	if err != nil {
		return err
	}
	return c.JSON(report.Build(br))
}

func (s *Server) getCSV(c *fiber.Ctx) error {
	run, br, err := s.finishedReport(c)
	if err != nil {
		return err
	}
	c.Attachment(report.CSVFilename(run.Finished()))
	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	return report.WriteCSV(c, br.Results)
}

// cancelRun stops a run between addresses. Cancelling a finished run is a
// no-op.
func (s *Server) cancelRun(c *fiber.Ctx) error {
	run, err := s.lookup(c)
	if err != nil {
		return err
	}
	run.Cancel()
	state, _, _ := run.State()
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"id":    run.ID,
		"state": state,
	})
}
