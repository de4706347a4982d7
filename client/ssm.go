// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package client

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// SSMGetParameterAPI is the subset of the Systems Manager API used to read secrets.
type SSMGetParameterAPI interface {
	GetParameter(context.Context, *ssm.GetParameterInput, ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// SSMClient reads secrets from AWS Systems Manager Parameter Store.
type SSMClient struct {
	client SSMGetParameterAPI
}

// NewSSM creates an instance of the SSMClient from the given AWS SDK config.
func NewSSM(cfg *aws.Config) *SSMClient {
	return &SSMClient{client: ssm.NewFromConfig(*cfg)}
}

// NewSSMFromAPI wraps an existing Parameter Store API implementation.
func NewSSMFromAPI(api SSMGetParameterAPI) *SSMClient {
	return &SSMClient{client: api}
}

// Get retrieves the value for the given key from Parameter Store.
// Get assumes that the value is encrypted as a SecureString and returns the decrypted value.
func (c *SSMClient) Get(ctx context.Context, key string) (string, error) {
	paramValue, err := c.client.GetParameter(
		ctx,
		&ssm.GetParameterInput{
			Name:           &key,
			WithDecryption: aws.Bool(true),
		})
	if err != nil {
		return "", err
	}

	if paramValue.Parameter == nil || paramValue.Parameter.Value == nil {
		return "", fmt.Errorf("parameter store value does not exist for %s", key)
	}
	return *paramValue.Parameter.Value, nil
}
