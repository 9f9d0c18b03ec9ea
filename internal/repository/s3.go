package repository

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	awstrace "gopkg.in/DataDog/dd-trace-go.v1/contrib/aws/aws-sdk-go/aws"
	ddTracer "gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"
)

// S3 keeps the templates at a bucket.
type S3 struct {
	HTTPClient *http.Client
	Bucket     string
	Region     string
	Prefix     string
	svc        s3iface.S3API
}

// Init S3 internal state.
func (s *S3) Init() error {
	if s.HTTPClient == nil {
		return errors.New("internal/repository/S3.HTTPClient can't be nil")
	}
	if s.Bucket == "" {
		return errors.New("internal/repository/S3.Bucket can't be empty")
	}
	sess, err := session.NewSession()
	if err != nil {
		return fmt.Errorf("fail to start a session: %w", err)
	}
	sess = awstrace.WrapSession(sess)

	cfg := &aws.Config{HTTPClient: s.HTTPClient}
	if s.Region != "" {
		cfg.Region = aws.String(s.Region)
	}
	s.svc = s3.New(sess, cfg)
	return nil
}

// Get object. A missing object is returned as nil.
func (s S3) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	span, ctx := ddTracer.StartSpanFromContext(ctx, "S3.Get")
	defer span.Finish()

	object, err := s.svc.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: &s.Bucket,
		Key:    aws.String(s.Prefix + key),
	})
	if err != nil {
		if awsErr, ok := err.(awserr.Error); ok && (awsErr.Code() == s3.ErrCodeNoSuchKey) {
			return nil, nil
		}
		return nil, fmt.Errorf("fail to fetch the object at the key '%s': %w", key, err)
	}
	return object.Body, nil
}

// Put a object at the bucket.
func (s S3) Put(ctx context.Context, key string, rawPayload io.Reader) error {
	span, ctx := ddTracer.StartSpanFromContext(ctx, "S3.Put")
	defer span.Finish()

	payload, err := io.ReadAll(rawPayload)
	if err != nil {
		return fmt.Errorf("fail to read the payload: %w", err)
	}

	_, err = s.svc.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      &s.Bucket,
		Key:         aws.String(s.Prefix + key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String(contentType(key)),
	})
	if err != nil {
		return fmt.Errorf("fail to put the object at the key '%s': %w", key, err)
	}
	return nil
}

// Delete a object. Deleting a missing object is not an error.
func (s S3) Delete(ctx context.Context, key string) error {
	span, ctx := ddTracer.StartSpanFromContext(ctx, "S3.Delete")
	defer span.Finish()

	_, err := s.svc.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: &s.Bucket,
		Key:    aws.String(s.Prefix + key),
	})
	if err != nil {
		return fmt.Errorf("fail to delete the object at the key '%s': %w", key, err)
	}
	return nil
}

// List the keys ending with the suffix.
func (s S3) List(ctx context.Context, suffix string) ([]string, error) {
	span, ctx := ddTracer.StartSpanFromContext(ctx, "S3.List")
	defer span.Finish()

	var result []string
	err := s.svc.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: &s.Bucket,
		Prefix: aws.String(s.Prefix),
	}, func(page *s3.ListObjectsV2Output, _ bool) bool {
		for _, object := range page.Contents {
			key := strings.TrimPrefix(aws.StringValue(object.Key), s.Prefix)
			if isTemplateKey(key, suffix) {
				result = append(result, key)
			}
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("fail to list the objects: %w", err)
	}
	return result, nil
}
