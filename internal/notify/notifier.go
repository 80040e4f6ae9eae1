// Package notify delivers applicant lifecycle notifications over SES email
// and SNS SMS.
package notify

import (
	"context"
	"fmt"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	sestypes "github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/google/uuid"

	"localpro-backend/internal/common/config"
	"localpro-backend/internal/common/errors"
	"localpro-backend/internal/common/logger"
	"localpro-backend/internal/models"
)

// EmailSender is satisfied by *aws.SESClient.
type EmailSender interface {
	SendEmail(ctx context.Context, input *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SMSSender is satisfied by *aws.SNSClient.
type SMSSender interface {
	Publish(ctx context.Context, input *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Notifier sends per-event email and SMS. Channels are independently
// toggled in config; a disabled channel is silently skipped.
type Notifier struct {
	email  EmailSender
	sms    SMSSender
	config config.NotificationConfig
	logger logger.Logger
}

func NewNotifier(email EmailSender, sms SMSSender, cfg config.NotificationConfig, log logger.Logger) *Notifier {
	return &Notifier{
		email:  email,
		sms:    sms,
		config: cfg,
		logger: log.WithFields(map[string]interface{}{"component": "notifier"}),
	}
}

func (n *Notifier) ApplicationSubmitted(ctx context.Context, owner *models.Owner, app *models.Application) error {
	subject := "Your technician application was received"
	body := fmt.Sprintf(
		"Hi %s,\n\nWe received your technician application (%s). "+
			"Our team will review it and get back to you shortly.\n",
		owner.Name, app.ID)
	smsText := fmt.Sprintf("Your technician application %s was received and is under review.", shortID(app.ID))
	return n.send(ctx, "application_submitted", owner, subject, body, smsText)
}

func (n *Notifier) ApplicationApproved(ctx context.Context, owner *models.Owner, app *models.Application) error {
	subject := "Your technician application was approved"
	body := fmt.Sprintf(
		"Hi %s,\n\nCongratulations, your technician application has been approved. "+
			"Your profile is now live and customers can book your services.\n",
		owner.Name)
	smsText := "Congratulations! Your technician application was approved."
	return n.send(ctx, "application_approved", owner, subject, body, smsText)
}

func (n *Notifier) ApplicationRejected(ctx context.Context, owner *models.Owner, app *models.Application) error {
	subject := "Update on your technician application"
	body := fmt.Sprintf(
		"Hi %s,\n\nYour technician application was not approved.\n\nReason: %s\n\n"+
			"You can update your application and submit it again.\n",
		owner.Name, app.RejectionReason)
	smsText := "Your technician application needs changes. Check your email for details."
	return n.send(ctx, "application_rejected", owner, subject, body, smsText)
}

// send fans out to the enabled channels. A failed channel is reported but
// does not stop the other one.
func (n *Notifier) send(ctx context.Context, event string, owner *models.Owner, subject, body, smsText string) error {
	var firstErr error

	if n.config.Email.Enabled && owner.Email != "" {
		err := n.sendEmail(ctx, owner.Email, subject, body)
		n.record(event, owner.ID, "email", err, map[string]interface{}{"subject": subject})
		if err != nil {
			firstErr = errors.NewNotificationSendFailedError(event, err)
		}
	}

	if n.config.SMS.Enabled && owner.Phone != "" {
		err := n.sendSMS(ctx, owner.Phone, smsText)
		n.record(event, owner.ID, "sms", err, nil)
		if err != nil && firstErr == nil {
			firstErr = errors.NewNotificationSendFailedError(event, err)
		}
	}

	return firstErr
}

// record emits the delivery attempt as a structured notification entry.
func (n *Notifier) record(event, recipientID, channel string, sendErr error, payload map[string]interface{}) {
	entry := models.Notification{
		ID:          uuid.New().String(),
		RecipientID: recipientID,
		Type:        event,
		Channel:     channel,
		Status:      "sent",
		Payload:     payload,
		SentAt:      time.Now().UTC().Format(time.RFC3339),
	}
	if sendErr != nil {
		entry.Status = "failed"
		n.logger.WithError(sendErr).Error("notification delivery failed", map[string]interface{}{
			"notification": entry,
		})
		return
	}
	n.logger.Info("notification sent", map[string]interface{}{
		"notification": entry,
	})
}

func (n *Notifier) sendEmail(ctx context.Context, to, subject, body string) error {
	if n.email == nil {
		return fmt.Errorf("email sender not configured")
	}
	_, err := n.email.SendEmail(ctx, &ses.SendEmailInput{
		Source: awssdk.String(n.config.Email.FromEmail),
		Destination: &sestypes.Destination{
			ToAddresses: []string{to},
		},
		Message: &sestypes.Message{
			Subject: &sestypes.Content{Data: awssdk.String(subject)},
			Body: &sestypes.Body{
				Text: &sestypes.Content{Data: awssdk.String(body)},
			},
		},
	})
	return err
}

func (n *Notifier) sendSMS(ctx context.Context, phone, text string) error {
	if n.sms == nil {
		return fmt.Errorf("sms sender not configured")
	}
	input := &sns.PublishInput{
		PhoneNumber: awssdk.String(phone),
		Message:     awssdk.String(text),
	}
	_, err := n.sms.Publish(ctx, input)
	return err
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
