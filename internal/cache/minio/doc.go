// Package minio provides a cache.Store backed by MinIO or any S3-compatible
// object storage.
//
// # Basic Usage
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
//	    Secure: false,
//	})
//	if err != nil {
//	    return err
//	}
//
//	store := miniostore.NewStore(client, "tt-cache", "runs/")
//	c := cache.New(store, cache.Options{})
package minio
