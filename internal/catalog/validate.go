package catalog

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"
)

const (
	maxAuthorNameLength  = 100
	minAuthorNameLength  = 2
	maxBiographyLength   = 1000
	maxNationalityLength = 50
	maxTitleLength       = 200
	maxGenreLength       = 50
	maxPublisherLength   = 100
	maxLanguageLength    = 30
	maxDescriptionLength = 2000
	minPublishedYear     = 1000
	birthDateLayout      = "2006-01-02"
)

var isbnPattern = regexp.MustCompile(`^[0-9-X]+$`)

func validateAuthorInput(input AuthorInput) error {
	name := strings.TrimSpace(input.Name)
	if len(name) < minAuthorNameLength || len(name) > maxAuthorNameLength {
		return fmt.Errorf("%w: name must be between %d and %d characters",
			ErrValidation, minAuthorNameLength, maxAuthorNameLength)
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(input.Email)); err != nil {
		return fmt.Errorf("%w: email must be a valid address", ErrValidation)
	}
	if len(input.Biography) > maxBiographyLength {
		return fmt.Errorf("%w: biography exceeds %d characters", ErrValidation, maxBiographyLength)
	}
	if len(input.Nationality) > maxNationalityLength {
		return fmt.Errorf("%w: nationality exceeds %d characters", ErrValidation, maxNationalityLength)
	}
	if birthDate := strings.TrimSpace(input.BirthDate); birthDate != "" {
		if _, err := time.Parse(birthDateLayout, birthDate); err != nil {
			return fmt.Errorf("%w: birthDate must use the %s layout", ErrValidation, birthDateLayout)
		}
	}
	return nil
}

func validateBookInput(input BookInput, currentYear int) error {
	title := strings.TrimSpace(input.Title)
	if title == "" || len(title) > maxTitleLength {
		return fmt.Errorf("%w: title must be between 1 and %d characters", ErrValidation, maxTitleLength)
	}
	if strings.TrimSpace(input.AuthorID) == "" {
		return fmt.Errorf("%w: authorId is required", ErrValidation)
	}
	isbn := strings.TrimSpace(input.ISBN)
	if isbn == "" || !isbnPattern.MatchString(isbn) {
		return fmt.Errorf("%w: isbn must contain only digits, dashes and X", ErrValidation)
	}
	if input.PublishedYear != 0 && (input.PublishedYear < minPublishedYear || input.PublishedYear > currentYear) {
		return fmt.Errorf("%w: publishedYear must be between %d and %d",
			ErrValidation, minPublishedYear, currentYear)
	}
	if input.Pages < 0 {
		return fmt.Errorf("%w: pages must be positive", ErrValidation)
	}
	if len(input.Genre) > maxGenreLength {
		return fmt.Errorf("%w: genre exceeds %d characters", ErrValidation, maxGenreLength)
	}
	if len(input.Publisher) > maxPublisherLength {
		return fmt.Errorf("%w: publisher exceeds %d characters", ErrValidation, maxPublisherLength)
	}
	if len(input.Language) > maxLanguageLength {
		return fmt.Errorf("%w: language exceeds %d characters", ErrValidation, maxLanguageLength)
	}
	if len(input.Description) > maxDescriptionLength {
		return fmt.Errorf("%w: description exceeds %d characters", ErrValidation, maxDescriptionLength)
	}
	if input.Price < 0 {
		return fmt.Errorf("%w: price must not be negative", ErrValidation)
	}
	return nil
}
