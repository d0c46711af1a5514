package client

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func requestValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks the request before submission. A whitespace-only positive prompt is rejected.
func (r GenerationRequest) Validate() error {
	if strings.TrimSpace(r.PositivePrompt) == "" {
		return errors.New("positive_prompt is required")
	}
	err := requestValidator().Struct(r)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
		return fmt.Errorf("invalid generation request: %s", strings.Join(fields, ", "))
	}
	return err
}
