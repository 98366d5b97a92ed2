/*
Copyright © 2025 Jayson Grace <jayson.e.grace@gmail.com>

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/

// Package clouds provides the per-provider adapters behind the image
// lifecycle: EC2 for AWS, plus capability-less stubs for providers whose
// images are built and uploaded but not imported or published here.
package clouds

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
)

// ClientConfig carries provider credentials and defaults, applied
// uniformly across adapters in place of a process-global credential
// provider.
type ClientConfig struct {
	Region          string
	Profile         string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// awsConfig loads the AWS configuration for a region, applying any
// static credential override from the client config.
func awsConfig(ctx context.Context, cc ClientConfig, region string) (aws.Config, error) {
	var optFns []func(*config.LoadOptions) error

	if region == "" {
		region = cc.Region
	}
	if region != "" {
		optFns = append(optFns, config.WithRegion(region))
	}

	if cc.Profile != "" {
		optFns = append(optFns, config.WithSharedConfigProfile(cc.Profile))
	}

	if cc.AccessKeyID != "" && cc.SecretAccessKey != "" {
		provider := credentials.NewStaticCredentialsProvider(
			cc.AccessKeyID,
			cc.SecretAccessKey,
			cc.SessionToken,
		)
		optFns = append(optFns, config.WithCredentialsProvider(provider))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}

	if awsCfg.Region == "" {
		return aws.Config{}, fmt.Errorf("AWS region not specified (set AWS_REGION or pass region in config)")
	}

	return awsCfg, nil
}

// newEC2Client builds a region-bound EC2 client.
func newEC2Client(ctx context.Context, cc ClientConfig, region string) (EC2API, error) {
	awsCfg, err := awsConfig(ctx, cc, region)
	if err != nil {
		return nil, err
	}
	return ec2.NewFromConfig(awsCfg), nil
}
