package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"

	"github.com/Andreas0Cool/citra3ds/pkg/recording"
)

// storeFlags selects where recordings live: a local directory by
// default, or an S3 bucket when --s3-bucket is set.
type storeFlags struct {
	dir      string
	s3Bucket string
	s3Prefix string
	s3Region string
}

func (sf *storeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&sf.dir, "store-dir", "recordings",
		"Directory for recordings")
	cmd.Flags().StringVar(&sf.s3Bucket, "s3-bucket", "",
		"Store recordings in this S3 bucket instead of a directory")
	cmd.Flags().StringVar(&sf.s3Prefix, "s3-prefix", "remoteplay/",
		"Key prefix for recordings in the S3 bucket")
	cmd.Flags().StringVar(&sf.s3Region, "s3-region", "",
		"S3 bucket region (defaults to AWS_REGION)")
}

func (sf *storeFlags) build() (recording.Store, error) {
	if sf.s3Bucket == "" {
		return recording.NewFSStore(sf.dir), nil
	}
	client, err := s3ClientFromEnv(sf.s3Region)
	if err != nil {
		return nil, err
	}
	return recording.NewS3Store(client, sf.s3Bucket, sf.s3Prefix), nil
}

func (sf *storeFlags) describe() string {
	if sf.s3Bucket == "" {
		return sf.dir + string(os.PathSeparator)
	}
	return "s3://" + sf.s3Bucket + "/" + sf.s3Prefix
}

// s3ClientFromEnv builds an S3 client from AWS_ACCESS_KEY_ID,
// AWS_SECRET_ACCESS_KEY and optionally AWS_SESSION_TOKEN.
func s3ClientFromEnv(region string) (*s3.Client, error) {
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	if region == "" {
		return nil, fmt.Errorf("s3 store: set --s3-region or AWS_REGION")
	}

	key := os.Getenv("AWS_ACCESS_KEY_ID")
	secret := os.Getenv("AWS_SECRET_ACCESS_KEY")
	if key == "" || secret == "" {
		return nil, fmt.Errorf("s3 store: AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set")
	}

	creds := aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
		return aws.Credentials{
			AccessKeyID:     key,
			SecretAccessKey: secret,
			SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
			Source:          "environment",
		}, nil
	})

	return s3.NewFromConfig(aws.Config{
		Region:      region,
		Credentials: creds,
	}), nil
}
