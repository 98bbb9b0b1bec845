// Command predict prints the weather features and the model's temperature prediction for
// a single St. Louis date.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/kjstillabower/temperature-predictor/internal/client"
	"github.com/kjstillabower/temperature-predictor/internal/config"
	"github.com/kjstillabower/temperature-predictor/internal/models"
	"github.com/kjstillabower/temperature-predictor/internal/observability"
	"github.com/kjstillabower/temperature-predictor/internal/predict"
	"github.com/kjstillabower/temperature-predictor/internal/validation"
)

// displayDateLayout renders dates as e.g. "June 01, 2024".
const displayDateLayout = "January 02, 2006"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "predict: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("predict", flag.ContinueOnError)
	dateFlag := fs.String("date", "", "date to predict, YYYY-MM-DD (default today in the configured timezone)")
	dir := fs.String("config-dir", ".", "directory containing config/ and .env")
	lang := fs.String("lang", "en", "BCP 47 language tag for number formatting")
	if err := fs.Parse(args); err != nil {
		return err
	}

	tag, err := language.Parse(*lang)
	if err != nil {
		return fmt.Errorf("parse -lang: %w", err)
	}

	cfg, err := config.LoadFrom(*dir)
	if err != nil {
		return err
	}
	logger, err := observability.NewLogger()
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	ctx = observability.WithLogger(ctx, logger)

	weatherClient, err := client.NewOpenMeteoClient(client.Config{
		ArchiveURL:    cfg.ArchiveURL,
		ForecastURL:   cfg.ForecastURL,
		Latitude:      cfg.Latitude,
		Longitude:     cfg.Longitude,
		Location:      cfg.Location,
		Timeout:       cfg.WeatherAPITimeout,
		RetryAttempts: cfg.RetryAttempts,
		RetryDelay:    cfg.RetryDelay,
	})
	if err != nil {
		return fmt.Errorf("weather client: %w", err)
	}

	today := weatherClient.Today()
	raw := *dateFlag
	if raw == "" {
		raw = today.String()
	}
	date, err := validation.ValidateDate(raw, cfg.MinDate, today, cfg.MaxDaysAhead)
	if err != nil {
		return err
	}

	predictor, err := predict.Load(cfg.ModelPath, cfg.ScalerPath)
	if err != nil {
		return fmt.Errorf("load model: %w", err)
	}

	obs, err := weatherClient.FetchObservation(ctx, date)
	if err != nil {
		logger.Debug("fetch failed", zap.String("category", string(client.CategorizeError(err))), zap.Error(err))
		return err
	}
	pred, err := predictor.Predict(obs, date)
	if err != nil {
		return fmt.Errorf("predict %s: %w", date, err)
	}

	return render(message.NewPrinter(tag), stdout, pred)
}

// render writes the human-readable report for pred.
func render(p *message.Printer, w io.Writer, pred models.Prediction) error {
	obs := pred.Observation
	lines := []string{
		p.Sprintf("Date: %s", pred.Date.Time(nil).Format(displayDateLayout)),
		p.Sprintf("TMIN: %.2f °C", obs.TMin),
		p.Sprintf("TMAX: %.2f °C", obs.TMax),
		p.Sprintf("Precipitation: %.2f mm", obs.Precipitation),
		p.Sprintf("Wind Speed: %.2f m/s", obs.WindSpeed),
		p.Sprintf("Source: %s", obs.Source),
		"",
		"Predicted Temperature",
		p.Sprintf("%.2f °F ( %.2f °C)", pred.TemperatureF, pred.TemperatureC),
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
