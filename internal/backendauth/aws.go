// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package backendauth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

// bedrockSigningName is the SigV4 service name of the Bedrock runtime API.
const bedrockSigningName = "bedrock"

// AWSHandler implements [Handler] for AWS Bedrock authz.
type AWSHandler struct {
	credentialsProvider aws.CredentialsProvider
	signer              *v4.Signer
	region              string
}

// NewAWSHandler loads AWS credentials either from the given credentials file
// content or from the default credential chain.
func NewAWSHandler(ctx context.Context, awsAuth *AWSAuth) (*AWSHandler, error) {
	if awsAuth == nil {
		return nil, fmt.Errorf("aws auth configuration is required")
	}

	opts := []func(*config.LoadOptions) error{}
	if awsAuth.Region != "" {
		opts = append(opts, config.WithRegion(awsAuth.Region))
	}

	var cfg aws.Config
	var err error
	if len(awsAuth.CredentialFileLiteral) != 0 {
		var tmpfile *os.File
		tmpfile, err = os.CreateTemp("", "aws-credentials")
		if err != nil {
			return nil, fmt.Errorf("cannot create temp file for AWS credentials: %w", err)
		}
		defer func() {
			_ = os.Remove(tmpfile.Name())
		}()
		if _, err = tmpfile.WriteString(awsAuth.CredentialFileLiteral); err != nil {
			return nil, fmt.Errorf("cannot write AWS credentials to temp file: %w", err)
		}
		if err = tmpfile.Close(); err != nil {
			return nil, fmt.Errorf("cannot close AWS credentials temp file: %w", err)
		}
		opts = append(opts, config.WithSharedCredentialsFiles([]string{tmpfile.Name()}))
		cfg, err = config.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("cannot load from credentials file: %w", err)
		}
		// The file is removed on return, so resolve the static credentials now.
		var creds aws.Credentials
		creds, err = cfg.Credentials.Retrieve(ctx)
		if err != nil {
			return nil, fmt.Errorf("cannot retrieve AWS credentials from file: %w", err)
		}
		cfg.Credentials = credentials.NewStaticCredentialsProvider(creds.AccessKeyID, creds.SecretAccessKey, creds.SessionToken)
	} else {
		// The default chain covers env vars, shared files, IRSA, pod identity and IMDS.
		cfg, err = config.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("cannot load AWS config: %w", err)
		}
	}

	region := cfg.Region
	if region == "" {
		region = DefaultAWSRegion
	}
	return &AWSHandler{credentialsProvider: cfg.Credentials, signer: v4.NewSigner(), region: region}, nil
}

// Region returns the region requests are signed for.
func (a *AWSHandler) Region() string { return a.region }

// Do implements [Handler.Do].
func (a *AWSHandler) Do(ctx context.Context, req *http.Request, body []byte) error {
	payloadHash := sha256.Sum256(body)
	creds, err := a.credentialsProvider.Retrieve(ctx)
	if err != nil {
		return fmt.Errorf("cannot retrieve AWS credentials: %w", err)
	}
	err = a.signer.SignHTTP(ctx, creds, req,
		hex.EncodeToString(payloadHash[:]), bedrockSigningName, a.region, time.Now())
	if err != nil {
		return fmt.Errorf("cannot sign request: %w", err)
	}
	return nil
}
