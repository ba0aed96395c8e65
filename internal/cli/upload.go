package cli

import (
	"context"

	"github.com/spf13/cobra"

	"cms-console/internal/domain"
	"cms-console/internal/validation"
)

func (a *App) uploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload <path|s3://bucket/key>",
		Short: "Upload an image and print its URL (Admin)",
		Long: `Upload a JPG or PNG (max 5MB) to the CMS and print the stored URL, for use
with 'articles update --image' or elsewhere.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.guard(domain.RoleAdmin).Protect(cmd.Context(), func(ctx context.Context, _ *domain.User) error {
				img, err := a.images.Open(ctx, args[0])
				if err != nil {
					return validation.Errors{"image": "Image could not be read: " + err.Error()}
				}
				defer img.Close()

				if err := validation.ValidateImage(validation.ImageMeta{
					Ref:         args[0],
					ContentType: img.ContentType,
					Size:        img.Size,
				}); err != nil {
					return err
				}

				url, err := a.client.Upload(ctx, img.Name, img.ContentType, img.Body)
				if err != nil {
					return err
				}
				if a.jsonOut {
					return a.printer.JSON(map[string]string{"imageUrl": url})
				}
				a.printer.Print("%s", url)
				return nil
			})
		},
	}
}
