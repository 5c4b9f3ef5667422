package gateway

import (
	"bytes"
	"context"
	"strings"
	"text/template"
	"time"
)

// Template is the offline fallback gateway. It answers every request with a
// fixed EC2 instance, or a VPC and subnet when the request mentions
// networking.
type Template struct {
	region string
	clock  func() time.Time
}

// NewTemplate builds the fallback for region. A nil clock uses time.Now.
func NewTemplate(region string, clock func() time.Time) *Template {
	if region == "" {
		region = "us-east-1"
	}
	if clock == nil {
		clock = time.Now
	}
	return &Template{region: region, clock: clock}
}

func (t *Template) Name() string { return "template" }

// Generate renders the template matching prompt.
func (t *Template) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	tmpl := instanceTemplate
	if wantsNetwork(prompt) {
		tmpl = networkTemplate
	}

	var buf bytes.Buffer
	err := tmpl.Execute(&buf, struct {
		Region    string
		CreatedAt string
	}{
		Region:    t.region,
		CreatedAt: t.clock().UTC().Format("2006-01-02"),
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

func wantsNetwork(prompt string) bool {
	p := strings.ToLower(prompt)
	return strings.Contains(p, "vpc") || strings.Contains(p, "network") || strings.Contains(p, "subnet")
}

const providerBlock = `terraform {
  required_providers {
    aws = {
      source  = "hashicorp/aws"
      version = "~> 5.0"
    }
  }
}

provider "aws" {
  region = "{{.Region}}"
}
`

const tagBlock = `
    source         = "promptinfra"
    auto_generated = "true"
    created_at     = "{{.CreatedAt}}"
    managed_by     = "promptinfra"
  }`

var instanceTemplate = template.Must(template.New("instance").Parse(providerBlock + `
resource "aws_instance" "promptinfra_instance" {
  ami           = "ami-0c02fb55956c7d316"
  instance_type = "t2.micro"

  tags = {
    Name           = "PromptInfra Instance"` + tagBlock + `
}

output "instance_ip" {
  value = aws_instance.promptinfra_instance.public_ip
}
`))

var networkTemplate = template.Must(template.New("network").Parse(providerBlock + `
resource "aws_vpc" "promptinfra_vpc" {
  cidr_block           = "10.0.0.0/16"
  enable_dns_hostnames = true
  enable_dns_support   = true

  tags = {
    Name           = "PromptInfra VPC"` + tagBlock + `
}

resource "aws_subnet" "promptinfra_subnet" {
  vpc_id     = aws_vpc.promptinfra_vpc.id
  cidr_block = "10.0.1.0/24"

  tags = {
    Name           = "PromptInfra Subnet"` + tagBlock + `
}

output "vpc_id" {
  value = aws_vpc.promptinfra_vpc.id
}
`))
