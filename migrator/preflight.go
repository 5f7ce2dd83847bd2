package migrator

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go/service/sts"

	"github.com/Clever/kayvee-go/v7/logger"
)

// preflight verifies credentials and prerequisites before any mutation.
// Every failure here is fatal for the run.
func (m *Migrator) preflight(ctx context.Context) error {
	if err := m.cfg.validate(true); err != nil {
		return &PreflightError{Check: "config", Cause: err}
	}

	if m.sts == nil {
		return &PreflightError{Check: "credentials", Cause: fmt.Errorf("no STS client configured")}
	}
	ident, err := m.sts.GetCallerIdentityWithContext(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return &PreflightError{Check: "credentials", Cause: err}
	}
	log.InfoD("preflight-identity", logger.M{
		"account": aws.StringValue(ident.Account),
		"arn":     aws.StringValue(ident.Arn),
	})

	if m.cfg.UserPoolID != "" {
		if m.cognito == nil {
			return &PreflightError{Check: "user-pool", Cause: fmt.Errorf("no Cognito client configured")}
		}
		_, err := m.cognito.DescribeUserPoolWithContext(ctx, &cognitoidentityprovider.DescribeUserPoolInput{
			UserPoolId: aws.String(m.cfg.UserPoolID),
		})
		if err != nil {
			return &PreflightError{Check: "user-pool", Cause: err}
		}
	}

	// templates must be readable before the destructive apply is offered
	var readErr error
	m.templateRenamed, readErr = readTemplate(m.cfg.TemplateRenamed)
	if readErr != nil {
		return &PreflightError{Check: "template-renamed", Cause: readErr}
	}
	m.templateFinal, readErr = readTemplate(m.cfg.TemplateFinal)
	if readErr != nil {
		return &PreflightError{Check: "template-final", Cause: readErr}
	}

	return nil
}

func readTemplate(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", fmt.Errorf("template %s is empty", path)
	}
	return string(data), nil
}
