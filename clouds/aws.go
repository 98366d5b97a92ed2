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

package clouds

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/cowdogmoo/skyforge/errors"
	"github.com/cowdogmoo/skyforge/image"
	"github.com/cowdogmoo/skyforge/logging"
)

const awsPollInterval = 15 * time.Second

// AWSAdapter imports, publishes and deletes EC2 images. One client is
// held per region, created lazily.
type AWSAdapter struct {
	log       *logging.Logger
	clientCfg ClientConfig

	mu      sync.Mutex
	clients map[string]EC2API

	// newClient is swapped out in tests
	newClient func(ctx context.Context, region string) (EC2API, error)
}

// NewAWSAdapter creates the EC2 adapter.
func NewAWSAdapter(cc ClientConfig, log *logging.Logger) *AWSAdapter {
	a := &AWSAdapter{
		log:       log,
		clientCfg: cc,
		clients:   map[string]EC2API{},
	}
	a.newClient = func(ctx context.Context, region string) (EC2API, error) {
		return newEC2Client(ctx, cc, region)
	}
	return a
}

// Actions returns the lifecycle steps this provider supports.
func (a *AWSAdapter) Actions() []string {
	return []string{"import", "publish"}
}

// client returns the cached client for a region ("" = default region).
func (a *AWSAdapter) client(ctx context.Context, region string) (EC2API, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if c, ok := a.clients[region]; ok {
		return c, nil
	}

	c, err := a.newClient(ctx, region)
	if err != nil {
		return nil, err
	}
	a.clients[region] = c
	return c, nil
}

// Regions lists the account's enabled regions.
func (a *AWSAdapter) Regions(ctx context.Context) ([]string, error) {
	c, err := a.client(ctx, "")
	if err != nil {
		return nil, err
	}

	out, err := c.DescribeRegions(ctx, &ec2.DescribeRegionsInput{})
	if err != nil {
		return nil, errors.Wrap("describe regions", "aws", err)
	}

	regions := make([]string, 0, len(out.Regions))
	for _, r := range out.Regions {
		regions = append(regions, aws.ToString(r.RegionName))
	}
	return regions, nil
}

// describeByTags lists owned images matching a set of tag filters.
func (a *AWSAdapter) describeByTags(ctx context.Context, region string, tags map[string]string) ([]ec2types.Image, error) {
	c, err := a.client(ctx, region)
	if err != nil {
		return nil, err
	}

	filters := make([]ec2types.Filter, 0, len(tags))
	for k, v := range tags {
		filters = append(filters, ec2types.Filter{
			Name:   aws.String("tag:" + k),
			Values: []string{v},
		})
	}

	out, err := c.DescribeImages(ctx, &ec2.DescribeImagesInput{
		Owners:  []string{"self"},
		Filters: filters,
	})
	if err != nil {
		return nil, errors.Wrap("describe images", "aws", err)
	}
	return out.Images, nil
}

// GetLatestImportedTags returns the tag set of the most recently imported
// revision of an image, or nil when none exists.
func (a *AWSAdapter) GetLatestImportedTags(ctx context.Context, project, imageKey string) (image.Tags, error) {
	images, err := a.describeByTags(ctx, "", map[string]string{
		"project":   project,
		"image_key": imageKey,
	})
	if err != nil {
		return nil, err
	}

	var latest image.Tags
	for _, img := range images {
		t := tagsFromEC2(img.Tags)
		if latest == nil || t.Revision() > latest.Revision() {
			latest = t
		}
	}
	return latest, nil
}

// importFormats maps cloud image formats to EC2 snapshot import formats.
var importFormats = map[string]string{
	"vhd": "VHD",
	"raw": "RAW",
}

// ImportImage imports the uploaded artifact as an EBS snapshot, registers
// an AMI from it, and tags both. Returns the AMI id and its region.
func (a *AWSAdapter) ImportImage(ctx context.Context, cfg *image.Config) (string, string, error) {
	region := a.clientCfg.Region
	c, err := a.client(ctx, "")
	if err != nil {
		return "", "", err
	}

	format, ok := importFormats[cfg.ImageFormat]
	if !ok {
		return "", "", fmt.Errorf("unsupported import format %q", cfg.ImageFormat)
	}

	url := strings.TrimSuffix(cfg.DownloadURL, "/") + "/" + cfg.ImageFile()
	a.log.Info("Importing %s snapshot from %s", cfg.ImageName(), url)

	imp, err := c.ImportSnapshot(ctx, &ec2.ImportSnapshotInput{
		Description: aws.String(cfg.ImageName()),
		DiskContainer: &ec2types.SnapshotDiskContainer{
			Description: aws.String(cfg.ImageName()),
			Format:      aws.String(format),
			Url:         aws.String(url),
		},
	})
	if err != nil {
		return "", "", errors.Wrap("import snapshot", cfg.ImageName(), err)
	}

	snapshotID, err := a.waitSnapshotImport(ctx, c, aws.ToString(imp.ImportTaskId))
	if err != nil {
		return "", "", err
	}

	a.log.Info("Registering %s from snapshot %s", cfg.ImageName(), snapshotID)

	reg := &ec2.RegisterImageInput{
		Name:               aws.String(cfg.ImageName()),
		Description:        aws.String(cfg.ImageDescription()),
		Architecture:       archToEC2(cfg.Arch),
		VirtualizationType: aws.String("hvm"),
		RootDeviceName:     aws.String("/dev/xvda"),
		EnaSupport:         aws.Bool(true),
		BlockDeviceMappings: []ec2types.BlockDeviceMapping{{
			DeviceName: aws.String("/dev/xvda"),
			Ebs: &ec2types.EbsBlockDevice{
				SnapshotId:          aws.String(snapshotID),
				VolumeType:          ec2types.VolumeTypeGp3,
				DeleteOnTermination: aws.Bool(true),
			},
		}},
	}
	if cfg.Firmware == "uefi" {
		reg.BootMode = ec2types.BootModeValuesUefi
	}

	out, err := c.RegisterImage(ctx, reg)
	if err != nil {
		return "", "", errors.Wrap("register image", cfg.ImageName(), err)
	}
	imageID := aws.ToString(out.ImageId)

	if _, err := c.CreateTags(ctx, &ec2.CreateTagsInput{
		Resources: []string{imageID, snapshotID},
		Tags:      tagsToEC2(cfg.Tags()),
	}); err != nil {
		return "", "", errors.Wrap("tag imported image", imageID, err)
	}

	return imageID, region, nil
}

// waitSnapshotImport polls the import task until it completes.
func (a *AWSAdapter) waitSnapshotImport(ctx context.Context, c EC2API, taskID string) (string, error) {
	for {
		out, err := c.DescribeImportSnapshotTasks(ctx, &ec2.DescribeImportSnapshotTasksInput{
			ImportTaskIds: []string{taskID},
		})
		if err != nil {
			return "", errors.Wrap("describe import task", taskID, err)
		}
		if len(out.ImportSnapshotTasks) == 0 {
			return "", fmt.Errorf("import task %s not found", taskID)
		}

		detail := out.ImportSnapshotTasks[0].SnapshotTaskDetail
		if detail == nil {
			return "", fmt.Errorf("import task %s has no detail", taskID)
		}

		switch status := aws.ToString(detail.Status); status {
		case "completed":
			return aws.ToString(detail.SnapshotId), nil
		case "deleted", "deleting":
			return "", fmt.Errorf("import task %s failed: %s", taskID, aws.ToString(detail.StatusMessage))
		default:
			a.log.Debug("Import task %s: %s (%s%%)", taskID, status, aws.ToString(detail.Progress))
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(awsPollInterval):
		}
	}
}

// DeleteImage deregisters an AMI and deletes its backing snapshots.
func (a *AWSAdapter) DeleteImage(ctx context.Context, imageID string) error {
	return a.deleteImageIn(ctx, "", imageID)
}

func (a *AWSAdapter) deleteImageIn(ctx context.Context, region, imageID string) error {
	c, err := a.client(ctx, region)
	if err != nil {
		return err
	}

	out, err := c.DescribeImages(ctx, &ec2.DescribeImagesInput{ImageIds: []string{imageID}})
	if err != nil {
		return errors.Wrap("describe image", imageID, err)
	}

	var snapshots []string
	for _, img := range out.Images {
		for _, bdm := range img.BlockDeviceMappings {
			if bdm.Ebs != nil && bdm.Ebs.SnapshotId != nil {
				snapshots = append(snapshots, *bdm.Ebs.SnapshotId)
			}
		}
	}

	a.log.Info("Deregistering %s", imageID)
	if _, err := c.DeregisterImage(ctx, &ec2.DeregisterImageInput{ImageId: aws.String(imageID)}); err != nil {
		return errors.Wrap("deregister image", imageID, err)
	}

	for _, snap := range snapshots {
		if _, err := c.DeleteSnapshot(ctx, &ec2.DeleteSnapshotInput{SnapshotId: aws.String(snap)}); err != nil {
			return errors.Wrap("delete snapshot", snap, err)
		}
	}

	return nil
}

// PublishImage copies the imported AMI to every enabled region, makes
// each copy public, and returns the region to AMI-id map. Re-publishing
// is safe: regions that already have the image are only re-permissioned.
func (a *AWSAdapter) PublishImage(ctx context.Context, cfg *image.Config) (map[string]string, error) {
	if cfg.ImportID == "" {
		return nil, fmt.Errorf("%s: not imported, cannot publish", cfg.ImageKey)
	}

	regions, err := a.Regions(ctx)
	if err != nil {
		return nil, err
	}

	source := a.clientCfg.Region
	if cfg.ImportRegion != "" {
		source = cfg.ImportRegion
	}

	artifacts := map[string]string{}
	for _, region := range regions {
		id, err := a.publishTo(ctx, cfg, source, region)
		if err != nil {
			return artifacts, err
		}
		artifacts[region] = id
	}

	return artifacts, nil
}

func (a *AWSAdapter) publishTo(ctx context.Context, cfg *image.Config, source, region string) (string, error) {
	c, err := a.client(ctx, region)
	if err != nil {
		return "", err
	}

	id, err := a.findByName(ctx, c, cfg.ImageName())
	if err != nil {
		return "", err
	}

	if id == "" {
		a.log.Info("Copying %s to %s", cfg.ImageName(), region)
		out, err := c.CopyImage(ctx, &ec2.CopyImageInput{
			Name:          aws.String(cfg.ImageName()),
			Description:   aws.String(cfg.ImageDescription()),
			SourceImageId: aws.String(cfg.ImportID),
			SourceRegion:  aws.String(source),
		})
		if err != nil {
			return "", errors.Wrap("copy image", region, err)
		}
		id = aws.ToString(out.ImageId)

		if _, err := c.CreateTags(ctx, &ec2.CreateTagsInput{
			Resources: []string{id},
			Tags:      tagsToEC2(cfg.Tags()),
		}); err != nil {
			return "", errors.Wrap("tag copied image", id, err)
		}
	}

	if err := a.waitImageAvailable(ctx, c, id); err != nil {
		return "", err
	}

	if _, err := c.ModifyImageAttribute(ctx, &ec2.ModifyImageAttributeInput{
		ImageId:   aws.String(id),
		Attribute: aws.String("launchPermission"),
		LaunchPermission: &ec2types.LaunchPermissionModifications{
			Add: []ec2types.LaunchPermission{{Group: ec2types.PermissionGroupAll}},
		},
	}); err != nil {
		return "", errors.Wrap("set launch permission", id, err)
	}

	return id, nil
}

func (a *AWSAdapter) findByName(ctx context.Context, c EC2API, name string) (string, error) {
	out, err := c.DescribeImages(ctx, &ec2.DescribeImagesInput{
		Owners: []string{"self"},
		Filters: []ec2types.Filter{{
			Name:   aws.String("name"),
			Values: []string{name},
		}},
	})
	if err != nil {
		return "", errors.Wrap("describe images", name, err)
	}
	if len(out.Images) == 0 {
		return "", nil
	}
	return aws.ToString(out.Images[0].ImageId), nil
}

func (a *AWSAdapter) waitImageAvailable(ctx context.Context, c EC2API, id string) error {
	for {
		out, err := c.DescribeImages(ctx, &ec2.DescribeImagesInput{ImageIds: []string{id}})
		if err != nil {
			return errors.Wrap("describe image", id, err)
		}
		if len(out.Images) > 0 && out.Images[0].State == ec2types.ImageStateAvailable {
			return nil
		}

		a.log.Debug("Waiting for %s to become available", id)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(awsPollInterval):
		}
	}
}

// ListImages returns the tag sets of all owned available images in a
// region, enriched with the describe attributes inventory and pruning
// need. Tags alone are not trusted for identity since tagging may have
// failed after registration; callers parse the Name instead.
func (a *AWSAdapter) ListImages(ctx context.Context, region string) ([]image.Tags, error) {
	c, err := a.client(ctx, region)
	if err != nil {
		return nil, err
	}

	out, err := c.DescribeImages(ctx, &ec2.DescribeImagesInput{
		Owners: []string{"self"},
		Filters: []ec2types.Filter{{
			Name:   aws.String("state"),
			Values: []string{"available"},
		}},
	})
	if err != nil {
		return nil, errors.Wrap("describe images", region, err)
	}

	tags := make([]image.Tags, 0, len(out.Images))
	for _, img := range out.Images {
		t := tagsFromEC2(img.Tags)
		t["id"] = aws.ToString(img.ImageId)
		t["Name"] = aws.ToString(img.Name)
		t["created"] = aws.ToString(img.CreationDate)
		t["deprecated"] = aws.ToString(img.DeprecationTime)
		if img.Public != nil && *img.Public {
			t["public"] = "true"
		}
		for _, bdm := range img.BlockDeviceMappings {
			if bdm.Ebs != nil && bdm.Ebs.SnapshotId != nil {
				t["snapshot_id"] = *bdm.Ebs.SnapshotId
				break
			}
		}

		t["launched"] = "Never"
		attr, err := c.DescribeImageAttribute(ctx, &ec2.DescribeImageAttributeInput{
			ImageId:   img.ImageId,
			Attribute: ec2types.ImageAttributeNameLastLaunchedTime,
		})
		if err == nil && attr.LastLaunchedTime != nil && attr.LastLaunchedTime.Value != nil {
			t["launched"] = *attr.LastLaunchedTime.Value
		}

		tags = append(tags, t)
	}
	return tags, nil
}

// DeleteImageIn removes an image from a specific region, for pruning.
func (a *AWSAdapter) DeleteImageIn(ctx context.Context, region, imageID string) error {
	return a.deleteImageIn(ctx, region, imageID)
}

func archToEC2(arch string) ec2types.ArchitectureValues {
	if arch == "aarch64" {
		return ec2types.ArchitectureValuesArm64
	}
	return ec2types.ArchitectureValuesX8664
}

func tagsFromEC2(tags []ec2types.Tag) image.Tags {
	kvs := make([]image.KV, 0, len(tags))
	for _, t := range tags {
		kvs = append(kvs, image.KV{Key: aws.ToString(t.Key), Value: aws.ToString(t.Value)})
	}
	return image.TagsFromList(kvs)
}

func tagsToEC2(t image.Tags) []ec2types.Tag {
	out := make([]ec2types.Tag, 0, len(t))
	for _, kv := range t.AsList() {
		out = append(out, ec2types.Tag{Key: aws.String(kv.Key), Value: aws.String(kv.Value)})
	}
	return out
}
