package products

import (
	"context"
	"fmt"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"fernway/models"
	"fernway/utils"

	"github.com/disintegration/imaging"
	"github.com/julienschmidt/httprouter"
	"go.mongodb.org/mongo-driver/bson"
)

// UploadImage accepts a multipart image, stores the original and a 300px
// thumbnail under the upload directory, and appends the image to the product.
func (s *Service) UploadImage(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	productID := ps.ByName("id")
	var product models.Product
	if err := s.Products.FindOne(ctx, bson.M{"_id": productID}).Decode(&product); err != nil {
		utils.RespondWithError(w, http.StatusNotFound, "Product not found")
		return
	}

	if err := r.ParseMultipartForm(10 << 20); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	files := r.MultipartForm.File["image"]
	if len(files) == 0 {
		utils.RespondWithError(w, http.StatusBadRequest, "No image file provided")
		return
	}

	url, imageID, err := s.processImageUpload(files[0])
	if err != nil {
		log.Println("image upload error:", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to process image")
		return
	}

	image := models.ProductImage{
		ID:  imageID,
		URL: url,
		Alt: r.FormValue("alt"),
	}
	if _, err := s.Products.UpdateOne(ctx, bson.M{"_id": productID}, bson.M{
		"$push": bson.M{"images": image},
		"$set":  bson.M{"updatedAt": time.Now()},
	}); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to attach image")
		return
	}

	utils.RespondWithJSON(w, http.StatusCreated, image)
}

// RemoveImage detaches an image from the product. The files stay on disk.
func (s *Service) RemoveImage(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	res, err := s.Products.UpdateOne(ctx, bson.M{"_id": ps.ByName("id")}, bson.M{
		"$pull": bson.M{"images": bson.M{"imageId": ps.ByName("imageId")}},
		"$set":  bson.M{"updatedAt": time.Now()},
	})
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to remove image")
		return
	}
	if res.MatchedCount == 0 {
		utils.RespondWithError(w, http.StatusNotFound, "Product not found")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, utils.M{"status": "removed"})
}

func (s *Service) processImageUpload(file *multipart.FileHeader) (string, string, error) {
	src, err := file.Open()
	if err != nil {
		return "", "", fmt.Errorf("failed to open image file: %w", err)
	}
	defer src.Close()

	img, err := imaging.Decode(src)
	if err != nil {
		return "", "", fmt.Errorf("failed to decode image: %w", err)
	}

	imageID := utils.GenerateRandomString(16)
	fileName := imageID + ".jpg"

	originalPath := filepath.Join(s.UploadDir, fileName)
	thumbDir := filepath.Join(s.UploadDir, "thumb")
	thumbnailPath := filepath.Join(thumbDir, fileName)

	if err := os.MkdirAll(s.UploadDir, 0o755); err != nil {
		return "", "", fmt.Errorf("failed to create upload directory: %w", err)
	}
	if err := os.MkdirAll(thumbDir, 0o755); err != nil {
		return "", "", fmt.Errorf("failed to create thumbnail directory: %w", err)
	}

	if err := imaging.Save(img, originalPath); err != nil {
		return "", "", fmt.Errorf("failed to save original image: %w", err)
	}

	thumbImg := imaging.Resize(img, 300, 0, imaging.Lanczos)
	if err := imaging.Save(thumbImg, thumbnailPath); err != nil {
		return "", "", fmt.Errorf("failed to save thumbnail: %w", err)
	}

	return "/productpic/" + fileName, imageID, nil
}
