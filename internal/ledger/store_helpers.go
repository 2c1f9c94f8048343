package ledger

import (
	"database/sql"
	"errors"
	"time"
)

func scanDispatch(scanner interface{ Scan(dest ...any) error }) (Dispatch, error) {
	var (
		d           Dispatch
		outcome     string
		errorKind   sql.NullString
		errorMsg    sql.NullString
		startedRaw  string
		finishedRaw string
	)
	if err := scanner.Scan(
		&d.ID,
		&d.PassID,
		&d.JobID,
		&d.Stage,
		&outcome,
		&errorKind,
		&errorMsg,
		&startedRaw,
		&finishedRaw,
	); err != nil {
		return Dispatch{}, err
	}
	d.Outcome = Outcome(outcome)
	d.ErrorKind = errorKind.String
	d.ErrorMessage = errorMsg.String
	if started, err := parseTimeString(startedRaw); err == nil {
		d.StartedAt = started
	}
	if finished, err := parseTimeString(finishedRaw); err == nil {
		d.FinishedAt = finished
	}
	return d, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
