package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"compliance-monitor/internal/compliance"
)

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type tagRuleRequest struct {
	TagName     string `json:"tagName" validate:"required,max=255"`
	ObjectType  string `json:"objectType" validate:"required"`
	Description string `json:"description"`
	AppliedBy   string `json:"appliedBy"`
}

type whitelistRequest struct {
	RuleID        string  `json:"ruleId" validate:"required"`
	AppliedRuleID *int64  `json:"appliedRuleId"`
	ObjectType    string  `json:"objectType" validate:"required"`
	ObjectName    string  `json:"objectName" validate:"required"`
	TagName       *string `json:"tagName"`
	Reason        string  `json:"reason" validate:"required"`
	WhitelistedBy string  `json:"whitelistedBy"`
}

type bulkRemoveRequest struct {
	IDs []int64 `json:"ids" validate:"required,min=1,dive,gt=0"`
}

type refreshRequest struct {
	Source string `json:"source"`
}

// decode reads a JSON body and runs struct validation. Malformed JSON yields
// errBadJSON; failed validation yields a *compliance.ValidationError.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", errBadJSON, err)
	}
	if err := validate.Struct(v); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			return requestValidationError(fieldErrs)
		}
		return fmt.Errorf("validation error: %w", err)
	}
	return nil
}

var errBadJSON = errors.New("invalid JSON")

func requestValidationError(fieldErrs validator.ValidationErrors) *compliance.ValidationError {
	details := make([]compliance.ErrorDetail, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		details = append(details, compliance.ErrorDetail{
			Field:   fe.Field(),
			Problem: fe.Tag(),
			Hint:    hintFor(fe),
		})
	}
	return &compliance.ValidationError{Code: "REQUEST_INVALID", Message: "request failed validation", Details: details}
}

func hintFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "Field is required"
	case "min":
		return "Provide at least " + fe.Param()
	case "max":
		return "At most " + fe.Param() + " characters"
	case "gt":
		return "Must be greater than " + fe.Param()
	default:
		return ""
	}
}
