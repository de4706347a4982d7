// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/nr-user-mgmt/nr-user-deprovisioner/handler"
)

func main() {
	env, err := handler.SetupEnvironment(context.Background())
	if err != nil {
		// We can't use the logger because of the error.
		fmt.Println("Error setting up the environment:", err)
		os.Exit(1)
	}

	lambda.Start(NewWebhook(env).HandleRequest)
}
