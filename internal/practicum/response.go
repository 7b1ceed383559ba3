package practicum

import (
	"fmt"

	"github.com/erkineren/homework-monitor/internal/apperror"
	"github.com/erkineren/homework-monitor/internal/models"
)

const (
	keyHomeworks = "homeworks"
	keyName      = "homework_name"
	keyStatus    = "status"
)

// ValidateResponse checks the shape of a decoded API body and returns the
// most recent homework record. ok is false when the list is empty, which
// means there is nothing new to report.
func ValidateResponse(body any) (record map[string]any, ok bool, err error) {
	response, isMap := body.(map[string]any)
	if !isMap {
		return nil, false, apperror.UnexpectedType("response", body)
	}

	raw, found := response[keyHomeworks]
	if !found {
		return nil, false, apperror.MissingKey(keyHomeworks)
	}

	homeworks, isList := raw.([]any)
	if !isList {
		return nil, false, apperror.UnexpectedType(keyHomeworks, raw)
	}
	if len(homeworks) == 0 {
		return nil, false, nil
	}

	record, isMap = homeworks[0].(map[string]any)
	if !isMap {
		return nil, false, apperror.UnexpectedType("homework record", homeworks[0])
	}

	return record, true, nil
}

// FormatNotification builds the chat message for a homework record. The
// parsed homework is returned alongside so callers can log and journal it
// without reading the record again.
func FormatNotification(record map[string]any) (models.Homework, string, error) {
	hw, err := parseHomework(record)
	if err != nil {
		return models.Homework{}, "", err
	}
	verdict, _ := hw.Status.Verdict()
	return hw, fmt.Sprintf("Homework review status changed for \"%s\". %s", hw.Name, verdict), nil
}

// parseHomework rejects statuses that have no verdict.
func parseHomework(record map[string]any) (models.Homework, error) {
	name, err := stringField(record, keyName)
	if err != nil {
		return models.Homework{}, err
	}
	status, err := stringField(record, keyStatus)
	if err != nil {
		return models.Homework{}, err
	}

	hw := models.Homework{Name: name, Status: models.Status(status)}
	if _, ok := hw.Status.Verdict(); !ok {
		return models.Homework{}, apperror.UnknownStatus(status)
	}

	return hw, nil
}

func stringField(record map[string]any, key string) (string, error) {
	raw, ok := record[key]
	if !ok {
		return "", apperror.MissingKey(key)
	}
	value, ok := raw.(string)
	if !ok {
		return "", apperror.UnexpectedType(key, raw)
	}
	return value, nil
}
