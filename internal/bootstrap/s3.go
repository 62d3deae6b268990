package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ensureBucket creates the signature image bucket unless this account
// already owns it.
func ensureBucket(ctx context.Context, client *s3.Client, bucket string) error {
	_, err := client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(bucket),
	})
	var owned *types.BucketAlreadyOwnedByYou
	if err != nil && !errors.As(err, &owned) {
		return err
	}

	return s3.NewBucketExistsWaiter(client).Wait(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}, waitTimeout)
}

// deleteBucket empties and deletes a bucket if it exists.
func deleteBucket(ctx context.Context, client *s3.Client, bucket string) error {
	var noBucket *types.NoSuchBucket

	pages := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{Bucket: aws.String(bucket)})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if errors.As(err, &noBucket) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("list %s: %w", bucket, err)
		}
		if len(page.Contents) == 0 {
			continue
		}

		ids := make([]types.ObjectIdentifier, 0, len(page.Contents))
		for _, obj := range page.Contents {
			ids = append(ids, types.ObjectIdentifier{Key: obj.Key})
		}
		if _, err := client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		}); err != nil {
			return fmt.Errorf("empty %s: %w", bucket, err)
		}
	}

	_, err := client.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(bucket)})
	if err != nil && !errors.As(err, &noBucket) {
		return fmt.Errorf("delete bucket %s: %w", bucket, err)
	}
	return nil
}
